package config

import (
	"sort"
	"strings"
)

// Snapshot is the merged key/value configuration store built at startup.
// It is only mutated by the loader; once attached to Config it is read-only
// and safe for concurrent use.
//
// A nil *Snapshot behaves as an empty store.
type Snapshot struct {
	values map[string]string
}

// NewSnapshot returns a Snapshot holding a copy of values.
func NewSnapshot(values map[string]string) *Snapshot {
	s := &Snapshot{values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// snapshotFromEnviron parses "KEY=VALUE" entries as returned by os.Environ.
func snapshotFromEnviron(entries []string) *Snapshot {
	s := &Snapshot{values: make(map[string]string, len(entries))}
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		s.values[key] = value
	}
	return s
}

// Lookup returns the value for key and whether it is present.
func (s *Snapshot) Lookup(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// Get returns a pointer to a copy of the value for key, or nil when absent.
// The pointer form marshals to JSON null for missing keys.
func (s *Snapshot) Get(key string) *string {
	v, ok := s.Lookup(key)
	if !ok {
		return nil
	}
	return &v
}

// WithPrefix returns every entry whose key starts with prefix, keyed by the
// remainder of the key. Entries whose remainder is empty are skipped.
func (s *Snapshot) WithPrefix(prefix string) map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for k, v := range s.values {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			out[rest] = v
		}
	}
	return out
}

// Keys returns the sorted key set.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// merge layers values on top of the snapshot. Without override, keys that
// are already present keep their current value. It returns the keys whose
// value changed, sorted.
func (s *Snapshot) merge(values map[string]string, override bool) []string {
	var changed []string
	for k, v := range values {
		cur, exists := s.values[k]
		if exists && (!override || cur == v) {
			continue
		}
		s.values[k] = v
		changed = append(changed, k)
	}
	sort.Strings(changed)
	return changed
}

// set assigns a single key.
func (s *Snapshot) set(key, value string) {
	s.values[key] = value
}
