package storage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/curanet/fhird/internal/service/common"
	"github.com/curanet/fhird/internal/service/fhir/model"
	"github.com/curanet/fhird/internal/service/fhir/ports"
)

type record struct {
	res     model.Resource
	version int
	deleted bool
}

// MemoryStore keeps resources in process memory. Transactional scopes are
// copy-on-write overlays: writes made under an open scope stage into the
// overlay, reads through the same scope observe them, Commit merges the
// overlay into the base maps under the store lock and Dispose drops it.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]record // type -> id -> current record
	ids  ports.IDProvider
	now  func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock fixes the timestamp source (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

func NewMemory(ids ports.IDProvider, opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		data: map[string]map[string]record{},
		ids:  ids,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type memScope struct {
	store  *MemoryStore
	staged map[string]map[string]record
	done   bool
}

func (m *MemoryStore) Begin(ctx context.Context) (ports.Scope, error) {
	return &memScope{store: m, staged: map[string]map[string]record{}}, nil
}

func (s *memScope) Commit(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for typ, byID := range s.staged {
		base := s.store.data[typ]
		if base == nil {
			base = map[string]record{}
			s.store.data[typ] = base
		}
		for id, rec := range byID {
			base[id] = rec
		}
	}
	s.done = true
	return nil
}

func (s *memScope) Dispose() {
	if !s.done {
		s.staged = nil
		s.done = true
	}
}

// scopeOf returns the overlay when ctx carries a scope opened by this store.
func (m *MemoryStore) scopeOf(ctx context.Context) *memScope {
	sc, ok := common.ScopeFrom(ctx)
	if !ok {
		return nil
	}
	ms, ok := sc.(*memScope)
	if !ok || ms.store != m || ms.done {
		return nil
	}
	return ms
}

func (m *MemoryStore) lookup(ctx context.Context, resourceType, id string) (record, bool) {
	if sc := m.scopeOf(ctx); sc != nil {
		if byID, ok := sc.staged[resourceType]; ok {
			if rec, ok := byID[id]; ok {
				return rec, true
			}
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[resourceType][id]
	return rec, ok
}

func (m *MemoryStore) write(ctx context.Context, resourceType, id string, rec record) {
	if sc := m.scopeOf(ctx); sc != nil {
		byID := sc.staged[resourceType]
		if byID == nil {
			byID = map[string]record{}
			sc.staged[resourceType] = byID
		}
		byID[id] = rec
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := m.data[resourceType]
	if byID == nil {
		byID = map[string]record{}
		m.data[resourceType] = byID
	}
	byID[id] = rec
}

func (m *MemoryStore) Create(ctx context.Context, res model.Resource) (model.Resource, error) {
	stored := res.Clone()
	id := stored.ID()
	if id == "" {
		id = m.ids.NextID()
		stored.SetID(id)
	}
	typ := stored.Type()
	if cur, ok := m.lookup(ctx, typ, id); ok && !cur.deleted {
		return nil, fmt.Errorf("create %s/%s: already exists: %w", typ, id, ports.ErrVersionConflict)
	}
	stored.SetMeta("1", m.now())
	m.write(ctx, typ, id, record{res: stored, version: 1})
	return stored.Clone(), nil
}

func (m *MemoryStore) Read(ctx context.Context, resourceType, id string) (model.Resource, error) {
	rec, ok := m.lookup(ctx, resourceType, id)
	if !ok || rec.deleted {
		return nil, fmt.Errorf("read %s/%s: %w", resourceType, id, ports.ErrNotFound)
	}
	return rec.res.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, resourceType, id string, res model.Resource, ifMatch string) (model.Resource, bool, error) {
	cur, ok := m.lookup(ctx, resourceType, id)
	exists := ok && !cur.deleted
	if !exists && ifMatch != "" {
		return nil, false, fmt.Errorf("update %s/%s: %w", resourceType, id, ports.ErrNotFound)
	}
	if exists && ifMatch != "" && normalizeETag(ifMatch) != fmt.Sprint(cur.version) {
		return nil, false, fmt.Errorf("update %s/%s: if-match %s: %w", resourceType, id, ifMatch, ports.ErrVersionConflict)
	}

	stored := res.Clone()
	stored.SetID(id)
	version := 1
	if ok {
		version = cur.version + 1
	}
	stored.SetMeta(fmt.Sprint(version), m.now())
	m.write(ctx, resourceType, id, record{res: stored, version: version})
	return stored.Clone(), !exists, nil
}

func (m *MemoryStore) Delete(ctx context.Context, resourceType, id string) error {
	cur, ok := m.lookup(ctx, resourceType, id)
	if !ok || cur.deleted {
		return fmt.Errorf("delete %s/%s: %w", resourceType, id, ports.ErrNotFound)
	}
	m.write(ctx, resourceType, id, record{version: cur.version + 1, deleted: true})
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, resourceType string, query url.Values) ([]model.Resource, error) {
	// Snapshot base ids, then re-read each through lookup so staged overlay
	// records (including tombstones) win.
	idSet := map[string]struct{}{}
	m.mu.RLock()
	for id := range m.data[resourceType] {
		idSet[id] = struct{}{}
	}
	m.mu.RUnlock()
	if sc := m.scopeOf(ctx); sc != nil {
		for id := range sc.staged[resourceType] {
			idSet[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []model.Resource
	for _, id := range ids {
		rec, ok := m.lookup(ctx, resourceType, id)
		if !ok || rec.deleted {
			continue
		}
		if matchQuery(rec.res, query) {
			out = append(out, rec.res.Clone())
		}
	}
	return out, nil
}
