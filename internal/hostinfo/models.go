package hostinfo

import (
	"encoding/json"
	"strings"

	"github.com/deployd/deploy-agent/pkg/facter"
	"github.com/deployd/deploy-agent/pkg/security"
)

const autoscalingGroupTag = "aws:autoscaling:groupName"

type HostInfo struct {
	Hostname         string            `json:"hostname"`
	IP               string            `json:"ip"`
	InstanceID       string            `json:"instanceId,omitempty"`
	AvailabilityZone string            `json:"availabilityZone,omitempty"`
	EC2Tags          map[string]string `json:"ec2Tags"`
	NormandieStatus  security.Status   `json:"normandieStatus,omitempty"`
	KnoxStatus       security.Status   `json:"knoxStatus,omitempty"`

	HostGroups       []string `json:"hostGroups,omitempty"`
	StageType        string   `json:"stageType,omitempty"`
	AccountID        string   `json:"accountId,omitempty"`
	AutoscalingGroup string   `json:"autoscalingGroup,omitempty"`

	initialized bool
}

// NewHostInfo returns a HostInfo ready to be resolved. tags and
// availabilityZone are the values kept when the inventory has nothing better.
func NewHostInfo(tags map[string]string, availabilityZone string) *HostInfo {
	ret := &HostInfo{
		AvailabilityZone: availabilityZone,
		EC2Tags:          make(map[string]string, len(tags)),
		initialized:      true,
	}

	for k, v := range tags {
		ret.EC2Tags[k] = v
	}

	return ret
}

// Resolved reports whether the mandatory attributes are known.
func (h HostInfo) Resolved() bool {
	return h.Hostname != "" && h.IP != ""
}

// apply copies facts into h. Empty facts never overwrite a known value.
func (h *HostInfo) apply(res facter.Result) {
	setIfNotEmpty(&h.Hostname, res.String(facter.FactHostname))
	setIfNotEmpty(&h.IP, res.String(facter.FactLocalIPv4))
	setIfNotEmpty(&h.InstanceID, res.String(facter.FactInstanceID))

	setIfNotEmpty(&h.AvailabilityZone, res.String(facter.FactMetadataAZ))
	setIfNotEmpty(&h.AvailabilityZone, res.String(facter.FactPlacementAZ))

	setIfNotEmpty(&h.StageType, res.String(facter.FactDeployServiceStage))

	groups := parseHostGroups(res.String(facter.FactDeployServiceCombined))
	if len(groups) > 0 {
		h.HostGroups = groups
	}

	_, isObject := res[facter.FactTags].(map[string]any)
	if isObject {
		h.EC2Tags = res.StringMap(facter.FactTags)
		setIfNotEmpty(&h.AutoscalingGroup, h.EC2Tags[autoscalingGroupTag])
	}

	setIfNotEmpty(&h.AccountID, parseAccountID(res[facter.FactIdentityCredentials]))
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// deploy_service_combined is a comma separated list of host groups.
func parseHostGroups(value string) []string {
	if value == "" {
		return nil
	}

	ret := make([]string, 0)

	for _, group := range strings.Split(value, ",") {
		group = strings.TrimSpace(group)
		if group != "" {
			ret = append(ret, group)
		}
	}

	return ret
}

type identityCredentials struct {
	Code      string `json:"Code"`
	AccountID string `json:"AccountId"`
}

// The identity credentials document comes either as the raw json string
// served by the metadata endpoint or already decoded by facter.
func parseAccountID(value any) string {
	switch v := value.(type) {
	case string:
		doc := identityCredentials{}

		err := json.Unmarshal([]byte(v), &doc)
		if err != nil {
			return ""
		}

		return doc.AccountID
	case map[string]any:
		ret, _ := v["AccountId"].(string)

		return ret
	default:
		return ""
	}
}
