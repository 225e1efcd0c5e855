package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curanet/fhird/internal/service/common"
	"github.com/curanet/fhird/internal/service/fhir/model"
	"github.com/curanet/fhird/internal/service/fhir/ports"
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx, so every statement can
// run either directly or inside an open scope.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists resources in a single resources table with the full
// JSON body in a jsonb column. Transactional scopes map directly onto pgx
// transactions.
type PostgresStore struct {
	pool *pgxpool.Pool
	ids  ports.IDProvider
	now  func() time.Time
}

func NewPostgres(ctx context.Context, dsn string, ids ports.IDProvider) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &PostgresStore{pool: pool, ids: ids, now: time.Now}, nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

type pgScope struct {
	tx   pgx.Tx
	done bool
}

func (p *PostgresStore) Begin(ctx context.Context) (ports.Scope, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &pgScope{tx: tx}, nil
}

func (s *pgScope) Commit(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *pgScope) Dispose() {
	if !s.done {
		s.done = true
		_ = s.tx.Rollback(context.Background())
	}
}

func (p *PostgresStore) q(ctx context.Context) querier {
	if sc, ok := common.ScopeFrom(ctx); ok {
		if ps, ok := sc.(*pgScope); ok && !ps.done {
			return ps.tx
		}
	}
	return p.pool
}

const upsertSQL = `
INSERT INTO resources (res_type, res_id, version, deleted, updated, content)
VALUES ($1, $2, $3, false, $4, $5)
ON CONFLICT (res_type, res_id)
DO UPDATE SET version = $3, deleted = false, updated = $4, content = $5`

func (p *PostgresStore) current(ctx context.Context, resourceType, id string) (version int, deleted, exists bool, err error) {
	row := p.q(ctx).QueryRow(ctx,
		`SELECT version, deleted FROM resources WHERE res_type = $1 AND res_id = $2`,
		resourceType, id)
	err = row.Scan(&version, &deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("select resource: %w", err)
	}
	return version, deleted, true, nil
}

func (p *PostgresStore) Create(ctx context.Context, res model.Resource) (model.Resource, error) {
	stored := res.Clone()
	id := stored.ID()
	if id == "" {
		id = p.ids.NextID()
		stored.SetID(id)
	}
	typ := stored.Type()

	_, deleted, exists, err := p.current(ctx, typ, id)
	if err != nil {
		return nil, err
	}
	if exists && !deleted {
		return nil, fmt.Errorf("create %s/%s: already exists: %w", typ, id, ports.ErrVersionConflict)
	}

	stored.SetMeta("1", p.now())
	content, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode resource: %w", err)
	}
	if _, err := p.q(ctx).Exec(ctx, upsertSQL, typ, id, 1, p.now(), content); err != nil {
		return nil, fmt.Errorf("insert %s/%s: %w", typ, id, err)
	}
	return stored, nil
}

func (p *PostgresStore) Read(ctx context.Context, resourceType, id string) (model.Resource, error) {
	var content []byte
	row := p.q(ctx).QueryRow(ctx,
		`SELECT content FROM resources WHERE res_type = $1 AND res_id = $2 AND NOT deleted`,
		resourceType, id)
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("read %s/%s: %w", resourceType, id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", resourceType, id, err)
	}
	return model.ParseResource(content)
}

func (p *PostgresStore) Update(ctx context.Context, resourceType, id string, res model.Resource, ifMatch string) (model.Resource, bool, error) {
	version, deleted, exists, err := p.current(ctx, resourceType, id)
	if err != nil {
		return nil, false, err
	}
	active := exists && !deleted
	if !active && ifMatch != "" {
		return nil, false, fmt.Errorf("update %s/%s: %w", resourceType, id, ports.ErrNotFound)
	}
	if active && ifMatch != "" && normalizeETag(ifMatch) != fmt.Sprint(version) {
		return nil, false, fmt.Errorf("update %s/%s: if-match %s: %w", resourceType, id, ifMatch, ports.ErrVersionConflict)
	}

	next := 1
	if exists {
		next = version + 1
	}
	stored := res.Clone()
	stored.SetID(id)
	stored.SetMeta(fmt.Sprint(next), p.now())
	content, err := json.Marshal(stored)
	if err != nil {
		return nil, false, fmt.Errorf("encode resource: %w", err)
	}
	if _, err := p.q(ctx).Exec(ctx, upsertSQL, resourceType, id, next, p.now(), content); err != nil {
		return nil, false, fmt.Errorf("upsert %s/%s: %w", resourceType, id, err)
	}
	return stored, !active, nil
}

func (p *PostgresStore) Delete(ctx context.Context, resourceType, id string) error {
	tag, err := p.q(ctx).Exec(ctx,
		`UPDATE resources SET deleted = true, version = version + 1, updated = $3
		 WHERE res_type = $1 AND res_id = $2 AND NOT deleted`,
		resourceType, id, p.now())
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", resourceType, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s/%s: %w", resourceType, id, ports.ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) Search(ctx context.Context, resourceType string, query url.Values) ([]model.Resource, error) {
	rows, err := p.q(ctx).Query(ctx,
		`SELECT content FROM resources WHERE res_type = $1 AND NOT deleted ORDER BY res_id`,
		resourceType)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", resourceType, err)
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		var content []byte
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("search %s: %w", resourceType, err)
		}
		res, err := model.ParseResource(content)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", resourceType, err)
		}
		if matchQuery(res, query) {
			out = append(out, res)
		}
	}
	return out, rows.Err()
}
