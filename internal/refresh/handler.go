package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/deployd/deploy-agent/internal/hostinfo"
	"github.com/deployd/deploy-agent/internal/publish"
)

const (
	resultInvalid    = "invalid"
	resultSkipped    = "skipped"
	resultUnresolved = "unresolved"
	resultFailed     = "failed"
	resultPublished  = "published"
)

type Resolver interface {
	Resolve(ctx context.Context, info *hostinfo.HostInfo) (bool, error)
}

// Handler consumes refresh requests. Every message is marked, whatever the
// outcome: a host that failed to refresh reports again on the next request.
// Refreshes are serialized across the claimed partitions.
type Handler struct {
	hostname  string
	resolver  Resolver
	publisher publish.Publisher

	// one resolution at a time, ConsumeClaim runs once per partition
	mu *sync.Mutex

	requests *prometheus.CounterVec
	logger   *logr.Logger
}

func NewHandler(hostname string, resolver Resolver, publisher publish.Publisher, registry prometheus.Registerer, namespace string) (Handler, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "refresh",
		Name:      "request_total",
		Help:      "Refresh requests by outcome.",
	}, []string{"result"})

	err := registry.Register(requests)
	if err != nil {
		return Handler{}, fmt.Errorf("failed to register metric: %w", err)
	}

	ret := Handler{
		hostname:  hostname,
		resolver:  resolver,
		publisher: publisher,
		mu:        &sync.Mutex{},
		requests:  requests,
	}

	return ret, nil
}

func (h Handler) WithLogger(logger logr.Logger) Handler {
	h.logger = &logger

	return h
}

func (h Handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()

	h.logInfo(0, "Start consuming",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initialOffset", claim.InitialOffset(),
	)

	for msg := range claim.Messages() {
		// If a re-balancing occurred, context will be canceled
		if ctx.Err() != nil {
			break
		}

		if msg == nil {
			h.logInfo(1, "Nil message")

			continue
		}

		result := h.handle(ctx, msg.Value)

		h.requests.WithLabelValues(result).Inc()
		h.logInfo(2, "Refresh request handled", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "result", result)

		session.MarkMessage(msg, "")
	}

	return nil
}

func (h Handler) handle(ctx context.Context, payload []byte) string {
	request := Request{}

	err := json.Unmarshal(payload, &request)
	if err != nil {
		h.logError(err, "Invalid refresh request", "payload", string(payload))

		return resultInvalid
	}

	if !request.Targets(h.hostname) {
		return resultSkipped
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.logInfo(1, "Refreshing host info", "reason", request.Reason)

	info := hostinfo.NewHostInfo(map[string]string{}, "")

	resolved, err := h.resolver.Resolve(ctx, info)
	if err != nil {
		h.logError(err, "Failed to resolve host info", "reason", request.Reason)

		return resultFailed
	}

	if !resolved {
		return resultUnresolved
	}

	err = h.publisher.Publish(ctx, *info)
	if err != nil {
		h.logError(err, "Failed to publish host info", "reason", request.Reason)

		return resultFailed
	}

	return resultPublished
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h Handler) Setup(session sarama.ConsumerGroupSession) error {
	h.logInfo(0, "Setup to consume", "claims", session.Claims())

	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h Handler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.logInfo(0, "Cleanup after consuming", "claims", session.Claims())

	return nil
}

func (h Handler) logInfo(level int, msg string, keysAndValues ...any) {
	if h.logger == nil {
		return
	}

	h.logger.V(level).Info(msg, keysAndValues...)
}

func (h Handler) logError(err error, msg string, keysAndValues ...any) {
	if h.logger == nil {
		return
	}

	h.logger.Error(err, msg, keysAndValues...)
}
