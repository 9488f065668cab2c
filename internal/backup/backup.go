// Package backup writes gzip-compressed JSON snapshots of the content
// repository to a blob store and restores them.
package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"abxcore/internal/blob"
	"abxcore/pkg/domain"
)

const (
	// KeyPrefix starts every archive key.
	KeyPrefix = "abx-snapshot-"
	keySuffix = ".json.gz"
	// keyTimeLayout sorts lexically in chronological order.
	keyTimeLayout = "2006-01-02T15-04-05.000000000Z"
	formatVersion = 1
	// DefaultKeep is the number of archives retained by rotation.
	DefaultKeep = 4
)

// ErrNoArchives is returned by Restore when the store holds no archive.
var ErrNoArchives = errors.New("backup: no archives found")

// Source is the repository being archived.
type Source interface {
	ExportState() domain.Snapshot
	ReplaceState(ctx context.Context, snapshot domain.Snapshot) error
}

// Logger receives progress messages.
type Logger interface {
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

type archive struct {
	FormatVersion int             `json:"format_version"`
	CreatedAt     time.Time       `json:"created_at"`
	Snapshot      domain.Snapshot `json:"snapshot"`
}

// Manager creates, lists, rotates and restores archives.
type Manager struct {
	source Source
	store  blob.Store
	keep   int
	now    func() time.Time
	logger Logger
}

// Option customises a Manager.
type Option func(*Manager)

// WithKeep sets how many archives survive rotation. Values below 1 keep the default.
func WithKeep(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.keep = n
		}
	}
}

// WithClock overrides the clock used to stamp archive keys.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger routes progress messages to logger.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager wires a Manager for source on store.
func NewManager(source Source, store blob.Store, opts ...Option) *Manager {
	m := &Manager{
		source: source,
		store:  store,
		keep:   DefaultKeep,
		now:    func() time.Time { return time.Now().UTC() },
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create archives the current repository state and rotates old archives.
func (m *Manager) Create(ctx context.Context) (blob.Info, error) {
	created := m.now().UTC()
	payload, err := encode(archive{FormatVersion: formatVersion, CreatedAt: created, Snapshot: m.source.ExportState()})
	if err != nil {
		return blob.Info{}, err
	}
	key := KeyPrefix + created.Format(keyTimeLayout) + keySuffix
	info, err := m.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/gzip",
		Metadata:    map[string]string{"format-version": fmt.Sprint(formatVersion)},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("upload %s: %w", key, err)
	}
	m.logger.Info("backup created", "key", key, "size", info.Size, "driver", string(m.store.Driver()))
	if err := m.rotate(ctx); err != nil {
		return info, err
	}
	return info, nil
}

// List returns archives newest first.
func (m *Manager) List(ctx context.Context) ([]blob.Info, error) {
	infos, err := m.store.List(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, keySuffix) {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

func (m *Manager) rotate(ctx context.Context) error {
	infos, err := m.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) <= m.keep {
		return nil
	}
	for _, info := range infos[m.keep:] {
		if _, err := m.store.Delete(ctx, info.Key); err != nil {
			m.logger.Warn("delete old backup failed", "key", info.Key, "error", err)
			continue
		}
		m.logger.Info("old backup deleted", "key", info.Key)
	}
	return nil
}

// Restore replaces the repository content with the archive stored under key.
// An empty key selects the newest archive.
func (m *Manager) Restore(ctx context.Context, key string) (string, error) {
	if key == "" {
		infos, err := m.List(ctx)
		if err != nil {
			return "", err
		}
		if len(infos) == 0 {
			return "", ErrNoArchives
		}
		key = infos[0].Key
	}
	_, rc, err := m.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	a, err := decode(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if err := m.source.ReplaceState(ctx, a.Snapshot); err != nil {
		return "", fmt.Errorf("restore %s: %w", key, err)
	}
	m.logger.Info("backup restored", "key", key, "created_at", a.CreatedAt)
	return key, nil
}

func encode(a archive) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(a); err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress archive: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(r io.Reader) (archive, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return archive{}, err
	}
	defer func() { _ = zr.Close() }()
	var a archive
	if err := json.NewDecoder(zr).Decode(&a); err != nil {
		return archive{}, err
	}
	if a.FormatVersion != formatVersion {
		return archive{}, fmt.Errorf("unsupported archive format %d", a.FormatVersion)
	}
	return a, nil
}
