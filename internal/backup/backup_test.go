package backup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"abxcore/internal/blob"
	"abxcore/internal/infra/persistence/memory"
	"abxcore/pkg/domain"
)

func steppingClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Minute)
	}
}

func TestCreateRotateRestore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	store.ImportState(domain.Snapshot{Versions: map[string]string{"abx": "1000"}})
	blobs := blob.NewMemory()
	m := NewManager(store, blobs, WithKeep(2), WithClock(steppingClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))))

	var keys []string
	for i := 0; i < 3; i++ {
		info, err := m.Create(ctx)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if !strings.HasPrefix(info.Key, KeyPrefix) || !strings.HasSuffix(info.Key, ".json.gz") {
			t.Fatalf("unexpected key %q", info.Key)
		}
		keys = append(keys, info.Key)
	}
	list, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != keys[2] || list[1].Key != keys[1] {
		t.Fatalf("expected two newest archives, got %+v", list)
	}

	store.ImportState(domain.Snapshot{})
	key, err := m.Restore(ctx, "")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if key != keys[2] {
		t.Fatalf("expected newest archive restored, got %s", key)
	}
	if got := store.ExportState().Versions["abx"]; got != "1000" {
		t.Fatalf("expected restored state, got %q", got)
	}
	if _, err := m.Restore(ctx, keys[0]); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected rotated archive to be gone, got %v", err)
	}
}

func TestRestoreErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	blobs := blob.NewMemory()
	m := NewManager(store, blobs)
	if _, err := m.Restore(ctx, ""); !errors.Is(err, ErrNoArchives) {
		t.Fatalf("expected no archives, got %v", err)
	}
	if _, err := blobs.Put(ctx, KeyPrefix+"broken"+keySuffix, bytes.NewReader([]byte("not gzip")), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := m.Restore(ctx, ""); err == nil {
		t.Fatalf("expected decode error")
	}
	payload, err := encode(archive{FormatVersion: 99})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := blobs.Put(ctx, KeyPrefix+"future"+keySuffix, bytes.NewReader(payload), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := m.Restore(ctx, KeyPrefix+"future"+keySuffix); err == nil || !strings.Contains(err.Error(), "unsupported archive format") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestListIgnoresForeignKeys(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	if _, err := blobs.Put(ctx, KeyPrefix+"notes.txt", bytes.NewReader([]byte("x")), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	m := NewManager(memory.NewStore(nil), blobs)
	list, err := m.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected no archives, got %v %+v", err, list)
	}
}
