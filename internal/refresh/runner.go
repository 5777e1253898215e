package refresh

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/go-logr/logr"
)

type Runner struct {
	consumer sarama.ConsumerGroup
	topics   []string

	handler Handler

	logger *logr.Logger
}

func NewRunner(consumer sarama.ConsumerGroup, topic string, handler Handler) Runner {
	return Runner{
		consumer: consumer,
		topics:   []string{topic},
		handler:  handler,
	}
}

func (r Runner) WithLogger(logger logr.Logger) Runner {
	r.logger = &logger
	r.handler = r.handler.WithLogger(logger)

	return r
}

// Start consumes until the context is done or the consumer group fails.
func (r Runner) Start(ctx context.Context) error {
	go func() {
		for err := range r.consumer.Errors() {
			r.logError(err, "kafka consumer error")
		}
	}()

	for {
		err := r.consumer.Consume(ctx, r.topics, r.handler)
		if err != nil {
			r.logError(err, "Consumer failed")

			return fmt.Errorf("consumer failed: %w", err)
		}

		err = ctx.Err()
		if err != nil {
			r.logInfo(0, "Context expired")

			return err
		}
	}
}

func (r Runner) logInfo(level int, msg string, keysAndValues ...any) {
	if r.logger == nil {
		return
	}

	r.logger.V(level).Info(msg, keysAndValues...)
}

func (r Runner) logError(err error, msg string, keysAndValues ...any) {
	if r.logger == nil {
		return
	}

	r.logger.Error(err, msg, keysAndValues...)
}
