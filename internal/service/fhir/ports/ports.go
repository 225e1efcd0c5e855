package ports

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/curanet/fhird/internal/service/fhir/model"
)

var (
	// ErrNotFound is returned by Store reads, updates and deletes when no
	// current (non-deleted) resource exists under the given type and id.
	ErrNotFound = errors.New("resource not found")

	// ErrVersionConflict is returned by Store.Update when an If-Match
	// precondition names a stale version.
	ErrVersionConflict = errors.New("resource version conflict")
)

// IDProvider hands out globally unique resource ids. Callers that already hold
// a pre-resolved id (a reference binding made before dispatch) bypass the
// provider by setting the id on the resource before Create.
type IDProvider interface {
	NextID() string
}

// Match is one search hit.
type Match struct {
	ID   string
	Type string
}

// SearchService resolves query parameters to matching resources. It backs
// plain search requests, conditional operations and conditional reference
// resolution. Result order is deterministic.
type SearchService interface {
	Search(ctx context.Context, resourceType string, query url.Values) ([]Match, error)
}

// SubRequest is a self-contained request descriptor synthesized for one bundle
// entry and routed through the same pipeline that serves standalone requests.
type SubRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type SubResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Pipeline dispatches a synthesized sub-request without a network round trip.
type Pipeline interface {
	Dispatch(ctx context.Context, req SubRequest) (SubResponse, error)
}

// Scope is one open atomic scope. Commit makes all writes performed under the
// scope durable; Dispose discards them. Dispose after a successful Commit is a
// no-op, so callers may defer it unconditionally.
type Scope interface {
	Commit(ctx context.Context) error
	Dispose()
}

// TransactionalResource opens atomic scopes for transaction bundles.
type TransactionalResource interface {
	Begin(ctx context.Context) (Scope, error)
}

// Store persists resources. Writes performed while a Scope opened by the same
// Store is carried in ctx are staged in that scope; reads observe staged
// writes (read-your-writes within one submission).
type Store interface {
	TransactionalResource

	// Create stores a new resource at version 1. An id already present on the
	// resource is kept; otherwise one is assigned.
	Create(ctx context.Context, res model.Resource) (model.Resource, error)

	// Read returns the current version of the resource.
	Read(ctx context.Context, resourceType, id string) (model.Resource, error)

	// Update replaces the resource, bumping its version. ifMatch, when
	// non-empty, must name the current version (weak ETag or bare version).
	// A missing resource is created (update-as-create); created reports that.
	Update(ctx context.Context, resourceType, id string, res model.Resource, ifMatch string) (updated model.Resource, created bool, err error)

	Delete(ctx context.Context, resourceType, id string) error

	// Search returns current resources of the given type matching the query,
	// ordered by id.
	Search(ctx context.Context, resourceType string, query url.Values) ([]model.Resource, error)
}

// AuditEvent is the per-entry metadata handed to the audit sink. Correlation
// groups all entries of one submission.
type AuditEvent struct {
	Correlation  string
	ResourceType string
	Action       string
	Status       int
}

// AuditSink consumes audit records. The engine emits exactly one Executing and
// one Executed record per dispatched entry, on success and error paths alike.
type AuditSink interface {
	Executing(ctx context.Context, ev AuditEvent)
	Executed(ctx context.Context, ev AuditEvent)
}
