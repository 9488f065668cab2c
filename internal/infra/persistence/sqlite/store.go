// Package sqlite persists the content repository to a single SQLite file,
// one JSON payload per bucket in the abx_state table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"abxcore/internal/infra/persistence/memory"
	"abxcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	// DefaultPath is used when no database path is configured.
	DefaultPath = "abx.db"
	// Table holds the bucket rows.
	Table = "abx_state"
)

// Store wraps a memory.Store and writes changed buckets to SQLite after
// every committed transaction.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string

	mu      sync.Mutex
	written map[string][]byte
}

// NewStore opens (or creates) the database at path and loads its content.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer keeps modernc from returning SQLITE_BUSY on flush
	db.SetMaxOpenConns(1)
	s := &Store{Store: memory.NewStore(engine), db: db, path: path, written: map[string][]byte{}}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ` + Table + ` (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	rows, err := s.db.Query(`SELECT bucket, payload FROM ` + Table)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if err := memory.DecodeBucket(&snapshot, bucket, payload); err != nil {
			return err
		}
		s.written[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(s.written) > 0 {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) flush(ctx context.Context) (retErr error) {
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
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	for _, bucket := range dirty {
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+Table+`(bucket, payload, updated_at) VALUES(?, ?, ?)
			ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			bucket, payloads[bucket], stamp); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, bucket := range dirty {
		s.written[bucket] = payloads[bucket]
	}
	return nil
}

// RunInTransaction commits fn in memory, then writes the changed buckets. A
// failed write rolls the in-memory state back too.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
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

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
