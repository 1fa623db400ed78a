// Package entity defines the core types shared across the resolution pipeline:
// mentions extracted from user utterances and the knowledge-base records they
// resolve to.
package entity

import "strings"

// SystemTypePrefix marks built-in entity types (sys_time, sys_number, ...).
// System entities arrive pre-resolved from the NLU layer and bypass the
// canonicalization engine entirely.
const SystemTypePrefix = "sys_"

// Entity is a text span extracted from a user utterance, tagged with an
// entity type. For system entity types, Value carries the already-resolved
// value.
type Entity struct {
	// Text is the raw surface form as it appeared in the utterance.
	Text string

	// Type is the entity type this mention was tagged with (e.g. "city").
	Type string

	// Role is an optional sub-classification within the type.
	Role string

	// Value is the pre-resolved value for system entities. Nil otherwise.
	Value any
}

// IsSystem reports whether this entity belongs to a built-in system type.
func (e Entity) IsSystem() bool {
	return IsSystemType(e.Type)
}

// IsSystemType reports whether the given entity type is a built-in system
// type.
func IsSystemType(entityType string) bool {
	return strings.HasPrefix(entityType, SystemTypePrefix)
}

// CanonicalItem is one knowledge-base record for an entity type.
//
// Cname is the canonical display name and is required but not necessarily
// unique: two distinct records may share a display name. ID, when present,
// must be unique within the entity type. Whitelist holds alternate surface
// forms that should resolve to this record; the cname itself is always an
// implicit alias. Extra preserves any additional mapping fields verbatim.
type CanonicalItem struct {
	ID        string
	Cname     string
	Whitelist []string
	Extra     map[string]any
}

// Aliases returns every surface form that should resolve to this item:
// the canonical name followed by the whitelist entries, in order.
func (c CanonicalItem) Aliases() []string {
	aliases := make([]string, 0, len(c.Whitelist)+1)
	aliases = append(aliases, c.Cname)
	aliases = append(aliases, c.Whitelist...)
	return aliases
}

// Projection returns a copy of the item with the whitelist stripped.
// The alias list is an internal matching artifact and is not part of the
// externally meaningful record returned to callers.
func (c CanonicalItem) Projection() CanonicalItem {
	out := CanonicalItem{
		ID:    c.ID,
		Cname: c.Cname,
	}
	if len(c.Extra) > 0 {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
