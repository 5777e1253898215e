package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/deployd/deploy-agent/internal/hostinfo"
)

// Parallel Publisher

type parallel struct {
	publishers []Publisher
}

// NewParallelPublisher publishes to every sink concurrently and returns the first error.
func NewParallelPublisher(p ...Publisher) Publisher {
	return parallel{
		publishers: p,
	}
}

func (p parallel) Publish(ctx context.Context, info hostinfo.HostInfo) error {
	group, ctx := errgroup.WithContext(ctx)

	for _, pub := range p.publishers {
		publisher := pub

		group.Go(func() error {
			return publisher.Publish(ctx, info)
		})
	}

	return group.Wait()
}

// Panic guard Publisher

type panicGuard struct {
	publisher Publisher
}

func NewPanicGuardPublisher(p Publisher) Publisher {
	return panicGuard{
		publisher: p,
	}
}

func (p panicGuard) Publish(ctx context.Context, info hostinfo.HostInfo) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = NewSinkError(fmt.Errorf("unexpected error: %v", r), PanicSink)
		}
	}()

	err = p.publisher.Publish(ctx, info)

	return
}

// Retry Publisher

type RetryConfig struct {
	MaxAttempt uint
	Delay      time.Duration
}

type retryPublisher struct {
	publisher Publisher
	config    RetryConfig
}

// NewRetryPublisher retries errors wrapping ErrRetryable, any other error is returned at once.
func NewRetryPublisher(p Publisher, config RetryConfig) Publisher {
	// retry-go treats 0 attempts as unlimited
	if config.MaxAttempt == 0 {
		config.MaxAttempt = 1
	}

	return retryPublisher{
		publisher: p,
		config:    config,
	}
}

func (p retryPublisher) Publish(ctx context.Context, info hostinfo.HostInfo) error {
	return retry.Do(
		func() error {
			return p.publisher.Publish(ctx, info)
		},
		retry.Context(ctx),
		retry.Attempts(p.config.MaxAttempt),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrRetryable)
		}),
		retry.Delay(p.config.Delay),
		retry.LastErrorOnly(true),
	)
}

// Metrics

type MetricsConfig struct {
	Namespace string
	Buckets   []float64
}

type durationDecorator struct {
	publisher Publisher
	histogram *prometheus.HistogramVec
	clock     clockwork.Clock
}

func NewDurationMetricsPublisher(p Publisher, registry prometheus.Registerer, clock clockwork.Clock, config MetricsConfig) (Publisher, error) {
	buckets := config.Buckets
	if len(buckets) == 0 {
		buckets = []float64{10, 20, 50, 100, 200, 500, 1000, 2000, 5000}
	}

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Name:      "publish_duration_milliseconds",
		Help:      "Time taken to publish host info.",
		Buckets:   buckets,
	}, []string{"failed"})

	err := registry.Register(histogram)
	if err != nil {
		return nil, fmt.Errorf("failed to register metric: %w", err)
	}

	ret := durationDecorator{
		publisher: p,
		histogram: histogram,
		clock:     clock,
	}

	return ret, nil
}

func (p durationDecorator) Publish(ctx context.Context, info hostinfo.HostInfo) error {
	start := p.clock.Now()

	err := p.publisher.Publish(ctx, info)

	duration := p.clock.Since(start)
	durationMilli := float64(duration) / float64(time.Millisecond)

	p.histogram.WithLabelValues(fmt.Sprintf("%v", err != nil)).Observe(durationMilli)

	return err
}

type errorCounter struct {
	publisher Publisher
	counter   *prometheus.CounterVec
}

// NewErrorCountPublisher counts failures by the sink found in the error chain.
func NewErrorCountPublisher(p Publisher, registry prometheus.Registerer, config MetricsConfig) (Publisher, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "publish_error_total",
		Help:      "Publish errors by sink.",
	}, []string{"sink"})

	err := registry.Register(counter)
	if err != nil {
		return nil, fmt.Errorf("failed to register metric: %w", err)
	}

	ret := errorCounter{
		publisher: p,
		counter:   counter,
	}

	return ret, nil
}

func (p errorCounter) Publish(ctx context.Context, info hostinfo.HostInfo) error {
	err := p.publisher.Publish(ctx, info)
	if err != nil {
		p.counter.WithLabelValues(sinkOf(err)).Inc()
	}

	return err
}
