package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/tlsprober/internal/domain"
	"github.com/hamed0406/tlsprober/internal/repo"
)

//go:embed schema.sql
var schemaSQL string

var (
	_ repo.TargetStore = (*Store)(nil)
	_ repo.ResultStore = (*Store)(nil)
	_ repo.AlertStore  = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("pg_schema_applied")
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- TargetStore ----

func (s *Store) Add(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = repo.NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO targets (id, raw, host, port, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (host, port) DO NOTHING`,
		string(t.ID), t.Raw, t.Host, t.Port, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrDuplicate
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, raw, host, port, created_at
		   FROM targets
		  ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Target
	for rows.Next() {
		var (
			t  domain.Target
			id string
		)
		if err := rows.Scan(&id, &t.Raw, &t.Host, &t.Port, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.ID = domain.TargetID(id)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ---- ResultStore ----

func (s *Store) Append(ctx context.Context, r *domain.ProbeRecord) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO results
		   (target_id, status, not_before, not_after, latency_ms, reason, checked_at)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7)`,
		string(r.TargetID), r.Status, r.NotBefore, r.NotAfter, r.LatencyMS, r.Reason, r.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context) ([]repo.LatestRow, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (r.target_id)
       r.target_id,
       t.raw,
       t.host,
       r.status,
       r.not_after,
       r.latency_ms,
       r.reason,
       r.checked_at
  FROM results r
  JOIN targets t ON t.id = r.target_id
 ORDER BY r.target_id, r.checked_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	defer rows.Close()

	var out []repo.LatestRow
	for rows.Next() {
		var (
			row     repo.LatestRow
			latency float64
		)
		if err := rows.Scan(&row.TargetID, &row.Target, &row.Host, &row.Status,
			&row.NotAfter, &latency, &row.Reason, &row.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan latest: %w", err)
		}
		lat := latency
		row.LatencyMS = &lat
		out = append(out, row)
	}
	return out, rows.Err()
}
