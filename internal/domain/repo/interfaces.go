package repo

import (
	"context"

	"github.com/deployd/deploy-agent/internal/hostinfo"
)

type HostInfoWriter interface {
	WriteHostInfo(ctx context.Context, info hostinfo.HostInfo) error
}

type HostInfoReader interface {
	GetHostInfos(ctx context.Context) ([]hostinfo.HostInfo, error)
}

type HostInfo interface {
	HostInfoWriter
	HostInfoReader
}
