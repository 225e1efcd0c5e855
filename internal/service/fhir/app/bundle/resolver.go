package bundle

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/curanet/fhird/internal/service/common"
	"github.com/curanet/fhird/internal/service/fhir/model"
	"github.com/curanet/fhird/internal/service/fhir/ports"
)

// binding resolves one submission-local reference token to a real identity.
type binding struct {
	id  string
	typ string
}

// resolver assigns ids to resources created within the submission and
// rewrites every embedded reference to fully-qualified Type/id form. It runs
// once per transaction submission, before scheduling; batch entries are
// independent and must not see each other's assigned ids.
type resolver struct {
	ids    ports.IDProvider
	search ports.SearchService
}

// resolve returns the map of entry index -> pre-assigned id that the
// dispatcher forces onto create operations. Entry resources are mutated in
// place; after resolve returns, entries are never rewritten again.
func (r *resolver) resolve(ctx context.Context, entries []Entry) (map[int]string, error) {
	bindings := map[string]binding{}
	forced := map[int]string{}

	// First pass: bind every client-local fullUrl on a create entry to a
	// freshly assigned id.
	for _, e := range entries {
		if e.Method != "POST" || e.FullURL == "" || e.Resource == nil {
			continue
		}
		if _, bound := bindings[e.FullURL]; bound {
			continue
		}
		id := r.ids.NextID()
		bindings[e.FullURL] = binding{id: id, typ: e.Resource.Type()}
		forced[e.Index] = id
	}

	// Second pass: rewrite embedded references, resolving conditional ones
	// through the search collaborator.
	for _, e := range entries {
		if e.Resource == nil {
			continue
		}
		entryCtx := common.WithOperation(ctx, common.Operation{
			ResourceType: e.Resource.Type(),
			Action:       "resolve",
		})
		err := e.Resource.RewriteReferences(func(ref string) (string, error) {
			return r.resolveRef(entryCtx, bindings, ref)
		})
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.Index, err)
		}
	}
	return forced, nil
}

func (r *resolver) resolveRef(ctx context.Context, bindings map[string]binding, ref string) (string, error) {
	if b, ok := bindings[ref]; ok {
		return b.typ + "/" + b.id, nil
	}
	if !strings.Contains(ref, "?") {
		return ref, nil
	}

	// Conditional reference: Type?query, resolved to exactly one match.
	typ, rawQuery, _ := strings.Cut(ref, "?")
	if !model.IsKnownType(typ) {
		return "", fmt.Errorf("reference %q: %w", ref, ErrUnsupportedResource)
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("reference %q: %w", ref, ErrUnresolvedReference)
	}
	matches, err := r.search.Search(ctx, typ, query)
	if err != nil {
		return "", fmt.Errorf("reference %q: %w", ref, err)
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("reference %q matched %d resources: %w", ref, len(matches), ErrUnresolvedReference)
	}
	bindings[ref] = binding{id: matches[0].ID, typ: matches[0].Type}
	return matches[0].Type + "/" + matches[0].ID, nil
}
