// Package facter queries the facter system-inventory tool.
//
// A query asks facter for a set of named facts and returns them as a flat
// JSON object. When noCache is set, --no-cache is appended so facter
// re-probes the host and its cloud metadata instead of answering from its
// fact cache.
package facter
