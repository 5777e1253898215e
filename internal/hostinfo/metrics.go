package hostinfo

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deployd/deploy-agent/pkg/security"
)

const (
	resolutionSuccess    = "success"
	resolutionUnresolved = "unresolved"
	resolutionError      = "error"
)

type Metrics struct {
	retries     *prometheus.CounterVec
	status      *prometheus.GaugeVec
	resolutions *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer, namespace string) (*Metrics, error) {
	ret := &Metrics{
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hostinfo",
			Name:      "nocache_retry_total",
			Help:      "No-cache inventory queries by attribute group.",
		}, []string{"group"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hostinfo",
			Name:      "security_status",
			Help:      "Last security status by check, 1 for OK and 0 for ERROR.",
		}, []string{"check"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hostinfo",
			Name:      "resolution_total",
			Help:      "Host info resolutions by result.",
		}, []string{"result"}),
	}

	for _, collector := range []prometheus.Collector{ret.retries, ret.status, ret.resolutions} {
		err := registry.Register(collector)
		if err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return ret, nil
}

func (m *Metrics) observeRetry(group string) {
	if m == nil {
		return
	}

	m.retries.WithLabelValues(group).Inc()
}

func (m *Metrics) observeStatus(check string, status security.Status) {
	if m == nil {
		return
	}

	value := 0.0
	if status == security.StatusOK {
		value = 1
	}

	m.status.WithLabelValues(check).Set(value)
}

func (m *Metrics) observeResolution(result string) {
	if m == nil {
		return
	}

	m.resolutions.WithLabelValues(result).Inc()
}
