package snapshot

import (
	"time"

	"github.com/deployd/deploy-agent/internal/hostinfo"
)

type Snapshot struct {
	Context  Context
	HostInfo hostinfo.HostInfo
}

type Context struct {
	Component   Component
	Environment string
	Time        time.Time
}

type Component struct {
	Version  string
	Branch   string
	Revision string
}
