package hostinfo

import (
	"context"

	"github.com/deployd/deploy-agent/pkg/facter"
	"github.com/deployd/deploy-agent/pkg/security"
)

//go:generate mockgen -source=interfaces.go -package=mock -destination=./mock/mock_hostinfo.go

// Querier answers inventory queries. Implemented by facter.Gateway and imds.Querier.
type Querier interface {
	Query(ctx context.Context, fields []string, noCache bool) (facter.Result, error)
}

// StatusChecker is implemented by security.Checker.
type StatusChecker interface {
	Check(ctx context.Context) security.Status
}
