// Package synonym builds the in-memory tables used for exact resolution and
// streams synonym documents into the ranked search backend.
package synonym

import (
	"github.com/conversekit/kbresolve/internal/entity"
)

// Tables holds the two read-only indexes produced by one build: the synonym
// table (normalized alias -> cnames claiming it) and the item table
// (cname -> records sharing that display name).
//
// Tables are immutable after Build returns; the resolver publishes a new
// Tables value atomically on each fit.
type Tables struct {
	// items maps cname to its records in mapping order.
	items map[string][]entity.CanonicalItem

	// synonyms maps normalized alias to the cnames registered for it, in
	// discovery order, deduplicated. More than one cname for an alias is
	// a normal ambiguity, not an error.
	synonyms map[string][]string
}

// NewTables creates empty tables.
func NewTables() *Tables {
	return &Tables{
		items:    make(map[string][]entity.CanonicalItem),
		synonyms: make(map[string][]string),
	}
}

// addItem appends a record under its cname.
func (t *Tables) addItem(item entity.CanonicalItem) {
	t.items[item.Cname] = append(t.items[item.Cname], item)
}

// addSynonym registers cname under a normalized alias. Returns true if the
// alias already had a different cname (an ambiguous synonym).
func (t *Tables) addSynonym(normAlias, cname string) (ambiguous bool) {
	existing := t.synonyms[normAlias]
	for _, c := range existing {
		if c == cname {
			return len(existing) > 1
		}
	}
	t.synonyms[normAlias] = append(existing, cname)
	return len(existing) > 0
}

// Cnames returns the canonical names registered for a normalized alias, in
// discovery order.
func (t *Tables) Cnames(normAlias string) ([]string, bool) {
	cnames, ok := t.synonyms[normAlias]
	return cnames, ok
}

// Items returns the records registered under a canonical name, in mapping
// order.
func (t *Tables) Items(cname string) []entity.CanonicalItem {
	return t.items[cname]
}

// ItemCount returns the total number of records across all cnames.
func (t *Tables) ItemCount() int {
	n := 0
	for _, items := range t.items {
		n += len(items)
	}
	return n
}

// SynonymCount returns the number of distinct normalized aliases.
func (t *Tables) SynonymCount() int {
	return len(t.synonyms)
}
