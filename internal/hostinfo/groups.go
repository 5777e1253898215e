package hostinfo

import "github.com/deployd/deploy-agent/pkg/facter"

// AttributeGroup is a set of facts queried together. When every Trigger fact
// comes back empty, Retry (a subset of Fields) is queried again without cache
// and only those facts are replaced.
type AttributeGroup struct {
	Name    string
	Trigger []string
	Fields  []string
	Retry   []string

	// FleetOnly groups are skipped outside of the cloud fleet.
	FleetOnly bool
}

var IdentityGroup = AttributeGroup{
	Name:    "identity",
	Trigger: []string{facter.FactInstanceID},
	Fields: []string{
		facter.FactLocalIPv4,
		facter.FactHostname,
		facter.FactInstanceID,
		facter.FactDeployServiceCombined,
	},
	Retry: []string{facter.FactInstanceID},
}

var PlacementGroup = AttributeGroup{
	Name:    "availability_zone",
	Trigger: []string{facter.FactPlacementAZ, facter.FactMetadataAZ},
	Fields: []string{
		facter.FactMetadataAZ,
		facter.FactTags,
		facter.FactDeployServiceStage,
		facter.FactPlacementAZ,
		facter.FactIdentityCredentials,
	},
	Retry:     []string{facter.FactMetadataAZ, facter.FactPlacementAZ},
	FleetOnly: true,
}

// DefaultGroups are resolved in order.
var DefaultGroups = []AttributeGroup{IdentityGroup, PlacementGroup}
