// Package postgres keeps the repository in a PostgreSQL table with one JSONB
// row per record bucket. Transactions run against the wrapped in-memory
// store; committed changes are flushed bucket by bucket.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"abxcore/internal/infra/persistence/memory"
	"abxcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no connection string is configured.
	DefaultDSN = "postgres://localhost/abx?sslmode=disable"
	// Table holds the bucket rows.
	Table = "abx_state"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a memory.Store whose committed state is written through to Postgres.
type Store struct {
	*memory.Store
	db *sql.DB

	mu      sync.Mutex
	written map[string][]byte
}

// NewStore connects to dsn (DefaultDSN when empty), creates the state table
// if needed and loads the stored repository.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, written: map[string][]byte{}}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + Table + ` (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM `+Table)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if err := memory.DecodeBucket(&snapshot, bucket, payload); err != nil {
			return err
		}
		s.written[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

// RunInTransaction commits fn in memory and flushes the changed buckets. If
// the flush fails the in-memory state is rolled back as well.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.flush(ctx); err != nil {
		s.ImportState(before)
		return res, err
	}
	return res, nil
}

// ReplaceState swaps the whole repository content and writes it through.
func (s *Store) ReplaceState(ctx context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	s.ImportState(snapshot)
	if err := s.flush(ctx); err != nil {
		s.ImportState(before)
		return err
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) flush(ctx context.Context) error {
	payloads, err := memory.EncodeBuckets(s.ExportState())
	if err != nil {
		return err
	}
	dirty := memory.DirtyBuckets(s.written, payloads)
	if len(dirty) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC()
	upsert := `INSERT INTO ` + Table + `(bucket, payload, updated_at) VALUES($1, $2, $3)
		ON CONFLICT(bucket) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	for _, bucket := range dirty {
		if _, err := tx.ExecContext(ctx, upsert, bucket, payloads[bucket], now); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	for _, bucket := range dirty {
		s.written[bucket] = payloads[bucket]
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
