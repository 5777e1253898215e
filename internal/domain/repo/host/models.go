package host

import (
	"time"

	"github.com/deployd/deploy-agent/internal/hostinfo"
)

// Registration is the value stored for each host.
type Registration struct {
	HostInfo  hostinfo.HostInfo
	UpdatedAt time.Time
}

func mapToModels(info hostinfo.HostInfo, now time.Time) Registration {
	return Registration{
		HostInfo:  info,
		UpdatedAt: now.UTC(),
	}
}

func mapToEntity(registration Registration) hostinfo.HostInfo {
	return registration.HostInfo
}
