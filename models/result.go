package models

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FailureSentinel is recorded in place of a URL when an identifier could
// not be resolved. Consumers of the mapping match on this exact value.
const FailureSentinel = "获取失败"

// Result maps video identifiers to their direct media URL (or to
// FailureSentinel), in the order identifiers were first recorded.
type Result struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewResult returns an empty Result.
func NewResult() *Result {
	return &Result{m: orderedmap.New[string, string]()}
}

// Set records url for id. Setting an id again replaces its value but keeps
// its original position.
func (r *Result) Set(id, url string) {
	r.m.Set(id, url)
}

// SetFailed records the failure sentinel for id.
func (r *Result) SetFailed(id string) {
	r.m.Set(id, FailureSentinel)
}

// Get returns the value recorded for id.
func (r *Result) Get(id string) (string, bool) {
	return r.m.Get(id)
}

// Len returns the number of recorded identifiers.
func (r *Result) Len() int {
	return r.m.Len()
}

// Keys returns the identifiers in insertion order.
func (r *Result) Keys() []string {
	keys := make([]string, 0, r.m.Len())
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Failed counts identifiers that resolved to the failure sentinel.
func (r *Result) Failed() int {
	n := 0
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value == FailureSentinel {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the mapping as a JSON object with keys in insertion order.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r == nil || r.m == nil {
		return []byte("{}"), nil
	}
	return r.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the input.
func (r *Result) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, string]()
	if err := m.UnmarshalJSON(data); err != nil {
		return err
	}
	r.m = m
	return nil
}

// String returns the JSON encoding of the mapping.
func (r *Result) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(b)
}
