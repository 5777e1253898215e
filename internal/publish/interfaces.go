package publish

import (
	"context"

	"github.com/deployd/deploy-agent/internal/hostinfo"
)

//go:generate mockgen -source=interfaces.go -package=mock -destination=./mock/mock_publish.go

// Publisher hands a resolved HostInfo to a sink.
type Publisher interface {
	Publish(ctx context.Context, info hostinfo.HostInfo) error
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, info hostinfo.HostInfo) error

func (f Func) Publish(ctx context.Context, info hostinfo.HostInfo) error {
	return f(ctx, info)
}
