package bundle

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/curanet/fhird/internal/service/fhir/ports"
)

// Shared fakes for the engine tests.

type fakeIDs struct{ n int }

func (f *fakeIDs) NextID() string {
	f.n++
	return fmt.Sprintf("id-%d", f.n)
}

type fakeSearch struct {
	fn    func(resourceType string, query url.Values) ([]ports.Match, error)
	calls int
}

func (f *fakeSearch) Search(ctx context.Context, resourceType string, query url.Values) ([]ports.Match, error) {
	f.calls++
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(resourceType, query)
}

type fakePipeline struct {
	fn       func(req ports.SubRequest) (ports.SubResponse, error)
	requests []ports.SubRequest
}

func (f *fakePipeline) Dispatch(ctx context.Context, req ports.SubRequest) (ports.SubResponse, error) {
	f.requests = append(f.requests, req)
	return f.fn(req)
}

type fakeScope struct {
	committed bool
	disposed  bool
	commitErr error
}

func (s *fakeScope) Commit(ctx context.Context) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committed = true
	return nil
}

func (s *fakeScope) Dispose() {
	if !s.committed {
		s.disposed = true
	}
}

type fakeTx struct {
	scope  *fakeScope
	begins int
}

func (f *fakeTx) Begin(ctx context.Context) (ports.Scope, error) {
	f.begins++
	if f.scope == nil {
		f.scope = &fakeScope{}
	}
	return f.scope, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []ports.AuditEvent
}

func (a *recordingAudit) Executing(ctx context.Context, ev ports.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAudit) Executed(ctx context.Context, ev ports.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}
