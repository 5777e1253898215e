package publish

import (
	"errors"
	"fmt"
)

const (
	UnknownSink = "unknown"
	PanicSink   = "panic"
)

// SinkError

type SinkError struct {
	error
	Sink string
}

func NewSinkError(err error, sink string) SinkError {
	return SinkError{
		error: err,
		Sink:  sink,
	}
}

func (e SinkError) Unwrap() error {
	return e.error
}

// ErrRetryable

var ErrRetryable = errors.New("retryable error")

func NewRetryableError(err error) error {
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}

func NewRetryableSinkError(err error, sink string) SinkError {
	return NewSinkError(NewRetryableError(err), sink)
}

func sinkOf(err error) string {
	ret := SinkError{}
	if errors.As(err, &ret) && ret.Sink != "" {
		return ret.Sink
	}

	return UnknownSink
}
