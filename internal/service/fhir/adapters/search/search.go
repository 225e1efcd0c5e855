// Package search implements the search collaborator on top of the resource
// store. Matching is exact-value over dotted paths; ranking and modifiers are
// out of scope for this server.
package search

import (
	"context"
	"fmt"
	"net/url"

	"github.com/curanet/fhird/internal/service/fhir/model"
	"github.com/curanet/fhird/internal/service/fhir/ports"
)

type Service struct {
	store ports.Store
}

func New(store ports.Store) *Service {
	return &Service{store: store}
}

// Search resolves the query to (id, type) matches in deterministic id order.
func (s *Service) Search(ctx context.Context, resourceType string, query url.Values) ([]ports.Match, error) {
	if !model.IsKnownType(resourceType) {
		return nil, fmt.Errorf("search: unknown resource type %q", resourceType)
	}
	resources, err := s.store.Search(ctx, resourceType, query)
	if err != nil {
		return nil, err
	}
	matches := make([]ports.Match, 0, len(resources))
	for _, res := range resources {
		matches = append(matches, ports.Match{ID: res.ID(), Type: res.Type()})
	}
	return matches, nil
}
