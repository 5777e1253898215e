package report

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"

	"github.com/deployd/deploy-agent/internal/common"
	"github.com/deployd/deploy-agent/internal/hostinfo"
)

const sinkName = "kafka"

var ErrMissingHostname = errors.New("missing hostname")

// KafkaWriter sends the host info as JSON, keyed by hostname so that all the
// reports of a host land on the same partition.
type KafkaWriter struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaWriter(producer sarama.SyncProducer, topic string) KafkaWriter {
	return KafkaWriter{
		producer: producer,
		topic:    topic,
	}
}

func (w KafkaWriter) Publish(ctx context.Context, info hostinfo.HostInfo) error {
	return w.WriteReport(ctx, info)
}

func (w KafkaWriter) WriteReport(ctx context.Context, info hostinfo.HostInfo) error {
	if info.Hostname == "" {
		return common.NewSinkError(ErrMissingHostname, sinkName, "invalid host info")
	}

	err := ctx.Err()
	if err != nil {
		return common.NewSinkError(err, sinkName, "context done")
	}

	b, err := json.Marshal(info)
	if err != nil {
		return common.NewSinkError(err, sinkName, "failed to marshal host info")
	}

	msg := &sarama.ProducerMessage{
		Topic: w.topic,
		Key:   sarama.StringEncoder(info.Hostname),
		Value: sarama.ByteEncoder(b),
	}

	_, _, err = w.producer.SendMessage(msg)
	if err != nil {
		if isRetryable(err) {
			return common.NewRetryableSinkError(err, sinkName, "failed to send to %s", w.topic)
		}

		return common.NewSinkError(err, sinkName, "failed to send to %s", w.topic)
	}

	return nil
}

func isRetryable(err error) bool {
	for _, retryable := range []error{
		sarama.ErrOutOfBrokers,
		sarama.ErrNotConnected,
		sarama.ErrLeaderNotAvailable,
		sarama.ErrNotLeaderForPartition,
		sarama.ErrRequestTimedOut,
		sarama.ErrNotEnoughReplicas,
	} {
		if errors.Is(err, retryable) {
			return true
		}
	}

	return false
}
