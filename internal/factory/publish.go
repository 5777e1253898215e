package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/deployd/deploy-agent/internal/common"
	"github.com/deployd/deploy-agent/internal/config"
	"github.com/deployd/deploy-agent/internal/domain/repo/host"
	"github.com/deployd/deploy-agent/internal/domain/repo/report"
	"github.com/deployd/deploy-agent/internal/domain/repo/snapshot"
	"github.com/deployd/deploy-agent/internal/publish"
)

var ErrNoSink = errors.New("no sink enabled")

// CreatePublisher creates the enabled sinks. The returned CloseFuncs must be
// called even when an error is returned.
func CreatePublisher(ctx context.Context, conf config.Config) ([]publish.Publisher, []common.CloseFunc, error) {
	ret := []publish.Publisher{}
	closers := []common.CloseFunc{}

	if conf.Publish.Valkey {
		client, closeFunc, err := CreateValkeyClient(ctx, conf.Valkey)
		if err != nil {
			return nil, closers, err
		}

		closers = append(closers, closeFunc)
		ret = append(ret, host.NewValkeyRepo(client, conf.Environment.Name, conf.Valkey.Expiration))
	}

	if conf.Publish.S3 {
		client, err := CreateS3Client(ctx, conf.S3)
		if err != nil {
			return nil, closers, err
		}

		ret = append(ret, snapshot.NewS3Writer(client, conf.S3.Bucket, conf.S3.KeyPrefix, conf.Environment.Name))
	}

	if conf.Publish.Kafka {
		producer, err := CreateKafkaProducer(conf.Kafka)
		if err != nil {
			return nil, closers, err
		}

		closers = append(closers, func(context.Context) error {
			return producer.Close()
		})
		ret = append(ret, report.NewKafkaWriter(producer, conf.Kafka.Report.Topic))
	}

	if len(ret) == 0 {
		return nil, closers, ErrNoSink
	}

	return ret, closers, nil
}

/*
 * DecoratePublisher decorates the sinks as follow:
 *
 *											---> retry --> sink 1
 *	panic --> duration --> error count --> parallel ---|
 *											---> retry --> sink N
 */
func DecoratePublisher(sinks []publish.Publisher, conf config.Publish, registry prometheus.Registerer) (publish.Publisher, error) {
	retryConfig := publish.RetryConfig{
		MaxAttempt: conf.MaxAttempt,
		Delay:      conf.Delay,
	}

	retried := make([]publish.Publisher, 0, len(sinks))
	for _, sink := range sinks {
		retried = append(retried, publish.NewRetryPublisher(sink, retryConfig))
	}

	metricsConfig := publish.MetricsConfig{Namespace: metricsNamespace}

	ret, err := publish.NewErrorCountPublisher(publish.NewParallelPublisher(retried...), registry, metricsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create error count publisher: %w", err)
	}

	ret, err = publish.NewDurationMetricsPublisher(ret, registry, clockwork.NewRealClock(), metricsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration metrics publisher: %w", err)
	}

	ret = publish.NewPanicGuardPublisher(ret)

	return ret, nil
}
