// Package conditional implements search-then-act semantics for conditional
// create, update and delete: evaluate the selection criteria first, then let
// the caller act on zero, one, or many matches.
//
// Known limitation: there is no concurrency control between the search and the
// subsequent action. Two concurrent conditional creates with the same criteria
// may both observe zero matches and both create distinct resources. The window
// is documented rather than guarded; callers must tolerate duplicates under
// concurrent load.
package conditional

import (
	"context"
	"net/url"

	"github.com/curanet/fhird/internal/service/fhir/ports"
)

type Outcome int

const (
	// Proceed: no match, the underlying operation goes ahead.
	Proceed Outcome = iota
	// Exists: exactly one match; conditional create treats this as a no-op
	// success, conditional update/delete act on the match.
	Exists
	// Ambiguous: multiple matches, the criteria were not selective enough.
	// Client-correctable (412), not a system fault.
	Ambiguous
)

type Decision struct {
	Outcome Outcome
	Match   *ports.Match
}

type Coordinator struct {
	search ports.SearchService
}

func NewCoordinator(search ports.SearchService) *Coordinator {
	return &Coordinator{search: search}
}

// Evaluate runs the selection search and classifies the match count.
func (c *Coordinator) Evaluate(ctx context.Context, resourceType string, query url.Values) (Decision, error) {
	matches, err := c.search.Search(ctx, resourceType, query)
	if err != nil {
		return Decision{}, err
	}
	switch len(matches) {
	case 0:
		return Decision{Outcome: Proceed}, nil
	case 1:
		m := matches[0]
		return Decision{Outcome: Exists, Match: &m}, nil
	default:
		return Decision{Outcome: Ambiguous}, nil
	}
}
