package facter

import (
	"encoding/json"
	"fmt"
)

// Result maps fact names to their values. Values are kept as decoded by
// encoding/json, so structured facts (ec2_metadata, ec2_tags) stay nested.
type Result map[string]any

// String returns the fact as a string. Missing and null facts are empty.
// Numbers and booleans are formatted, structured facts are re-encoded as json.
func (r Result) String(field string) string {
	value, present := r[field]
	if !present || value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case float64, bool:
		return fmt.Sprintf("%v", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return string(b)
	}
}

// StringMap returns a structured fact as a flat string map. Missing or
// non-object facts give an empty, non-nil map.
func (r Result) StringMap(field string) map[string]string {
	ret := make(map[string]string)

	obj, ok := r[field].(map[string]any)
	if !ok {
		return ret
	}

	nested := Result(obj)
	for key := range obj {
		ret[key] = nested.String(key)
	}

	return ret
}

// Empty reports whether every given fact is missing or empty.
func (r Result) Empty(fields ...string) bool {
	for _, field := range fields {
		if r.String(field) != "" {
			return false
		}
	}

	return true
}

// Merge overwrites the given fields with the values found in other. Fields
// missing from other are deleted, as a missing fact means an empty one.
func (r Result) Merge(other Result, fields ...string) {
	for _, field := range fields {
		value, present := other[field]
		if !present {
			delete(r, field)

			continue
		}

		r[field] = value
	}
}
