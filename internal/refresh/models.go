package refresh

import "slices"

// Request asks agents to resolve and publish their host info again. An empty
// Hosts targets every agent reading the topic.
type Request struct {
	Reason string   `json:"reason"`
	Hosts  []string `json:"hosts,omitempty"`
}

func (r Request) Targets(hostname string) bool {
	return len(r.Hosts) == 0 || slices.Contains(r.Hosts, hostname)
}
