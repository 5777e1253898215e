package common

import (
	"fmt"

	"github.com/deployd/deploy-agent/internal/publish"
)

func NewSinkError(err error, sink string, reason string, args ...interface{}) publish.SinkError {
	cause := fmt.Sprintf(reason, args...)
	dErr := fmt.Errorf("%s: %w", cause, err)

	return publish.NewSinkError(dErr, sink)
}

func NewRetryableSinkError(err error, sink string, reason string, args ...interface{}) publish.SinkError {
	return NewSinkError(publish.NewRetryableError(err), sink, reason, args...)
}
