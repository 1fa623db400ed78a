package resolver

import (
	"github.com/conversekit/kbresolve/internal/entity"
)

// Kind discriminates the shapes a resolution can produce. The exact and
// fuzzy paths return different result shapes on purpose: exact matches are
// concrete records, fuzzy matches are ranked candidate names whose full
// records the caller can fetch with a follow-up exact lookup.
type Kind int

const (
	// KindExactMatches carries concrete knowledge-base records.
	KindExactMatches Kind = iota
	// KindRankedCandidates carries scored candidate names from the fuzzy
	// path.
	KindRankedCandidates
	// KindUnresolved is the soft-failure fallback: the original mention
	// text, unresolved.
	KindUnresolved
	// KindPassthrough carries a system entity's pre-resolved value.
	KindPassthrough
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindExactMatches:
		return "EXACT_MATCHES"
	case KindRankedCandidates:
		return "RANKED_CANDIDATES"
	case KindUnresolved:
		return "UNRESOLVED"
	case KindPassthrough:
		return "PASSTHROUGH"
	default:
		return "UNKNOWN"
	}
}

// Candidate is one ranked fuzzy-path candidate.
type Candidate struct {
	// Cname is the candidate canonical name.
	Cname string `json:"cname"`

	// Score is the backend relevance score of the group's best hit.
	Score float64 `json:"score"`

	// HitCount is how many synonym documents supported the candidate,
	// capped by the backend's per-group sample size.
	HitCount int `json:"hit_count"`
}

// Result is the tagged union over the possible resolution outcomes. Exactly
// the field selected by Kind is meaningful.
type Result struct {
	Kind       Kind
	Items      []entity.CanonicalItem
	Candidates []Candidate
	Text       string
	Value      any
}

// ExactMatches wraps concrete records from the exact path.
func ExactMatches(items []entity.CanonicalItem) Result {
	return Result{Kind: KindExactMatches, Items: items}
}

// RankedCandidates wraps scored candidates from the fuzzy path.
func RankedCandidates(candidates []Candidate) Result {
	return Result{Kind: KindRankedCandidates, Candidates: candidates}
}

// Unresolved wraps the degraded fallback for a resolution miss.
func Unresolved(text string) Result {
	return Result{Kind: KindUnresolved, Text: text}
}

// Passthrough wraps a system entity's pre-resolved value.
func Passthrough(value any) Result {
	return Result{Kind: KindPassthrough, Value: value}
}
