// Package speaker maps diarization speaker ids to display names.
//
// Ids are assigned by the upstream diarization step and carry no identity;
// the operator supplies names in the configuration. A [Directory] can be
// swapped at runtime when the configuration is reloaded.
package speaker

import (
	"maps"
	"slices"
	"strconv"
	"sync/atomic"
)

// Unknown is the display name for speech without an assigned speaker.
const Unknown = "Unknown"

// Directory resolves speaker ids to names. It is safe for concurrent use and
// a nil *Directory resolves every id to its default name.
type Directory struct {
	names atomic.Pointer[map[int]string]
}

// NewDirectory returns a Directory holding a copy of names.
func NewDirectory(names map[int]string) *Directory {
	d := &Directory{}
	d.Set(names)
	return d
}

// Set replaces the mapping with a copy of names.
func (d *Directory) Set(names map[int]string) {
	cp := maps.Clone(names)
	if cp == nil {
		cp = map[int]string{}
	}
	d.names.Store(&cp)
}

// Name returns the display name for id: [Unknown] for nil, the configured
// name when present, and "Speaker N" otherwise.
func (d *Directory) Name(id *int) string {
	if id == nil {
		return Unknown
	}
	if d != nil {
		if m := d.names.Load(); m != nil {
			if name, ok := (*m)[*id]; ok && name != "" {
				return name
			}
		}
	}
	return DefaultName(*id)
}

// DefaultName is the name of a speaker without a configured one.
func DefaultName(id int) string {
	return "Speaker " + strconv.Itoa(id)
}

// Entry is one row of a roster.
type Entry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Roster resolves every id in ids, keeping their order.
func (d *Directory) Roster(ids []int) []Entry {
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = Entry{ID: id, Name: d.Name(&id)}
	}
	return out
}

// Snapshot returns a copy of the configured names.
func (d *Directory) Snapshot() map[int]string {
	if d == nil {
		return map[int]string{}
	}
	m := d.names.Load()
	if m == nil {
		return map[int]string{}
	}
	return maps.Clone(*m)
}

// Changed reports whether names differs from the current mapping.
func (d *Directory) Changed(names map[int]string) bool {
	cur := d.Snapshot()
	if len(cur) != len(names) {
		return true
	}
	keys := slices.Sorted(maps.Keys(names))
	for _, k := range keys {
		if v, ok := cur[k]; !ok || v != names[k] {
			return true
		}
	}
	return false
}
