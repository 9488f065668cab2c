package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func contractStores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3":     newMockS3(t),
	}
}

func TestStoreContract(t *testing.T) {
	for name, bs := range contractStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			info, err := bs.Put(ctx, "snapshots/k1", bytes.NewReader([]byte("data")), PutOptions{ContentType: "application/gzip", Metadata: map[string]string{"profile": "abx"}})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Key != "snapshots/k1" || info.Size != 4 {
				t.Fatalf("unexpected info %#v", info)
			}
			if _, err := bs.Put(ctx, "snapshots/k1", bytes.NewReader([]byte("x")), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected exists error, got %v", err)
			}
			if _, err := bs.Put(ctx, "snapshots/k2", bytes.NewReader([]byte("more")), PutOptions{}); err != nil {
				t.Fatalf("put second: %v", err)
			}
			if _, err := bs.Put(ctx, "other/k3", bytes.NewReader([]byte("z")), PutOptions{}); err != nil {
				t.Fatalf("put third: %v", err)
			}

			h, err := bs.Head(ctx, "snapshots/k1")
			if err != nil || h.Size != 4 || h.ContentType != "application/gzip" {
				t.Fatalf("head unexpected: %#v %v", h, err)
			}
			g, rc, err := bs.Get(ctx, "snapshots/k1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			b, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(b) != "data" || g.Size != 4 {
				t.Fatalf("bad payload %q", b)
			}
			if _, _, err := bs.Get(ctx, "snapshots/missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected not found on get, got %v", err)
			}
			if _, err := bs.Head(ctx, "snapshots/missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected not found on head, got %v", err)
			}

			list, err := bs.List(ctx, "snapshots/")
			if err != nil || len(list) != 2 || list[0].Key != "snapshots/k1" || list[1].Key != "snapshots/k2" {
				t.Fatalf("list: %v %+v", err, list)
			}
			if all, err := bs.List(ctx, ""); err != nil || len(all) != 3 {
				t.Fatalf("expected all blobs, got %v %+v", err, all)
			}

			ok, err := bs.Delete(ctx, "snapshots/k1")
			if err != nil || !ok {
				t.Fatalf("delete expected true, got %v %v", ok, err)
			}
			if ok, _ = bs.Delete(ctx, "snapshots/k1"); ok {
				t.Fatalf("second delete should be false")
			}
		})
	}
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", " ", "/abs", "../escape", "a/../../b", "x.meta"} {
		if _, err := fsStore.Put(ctx, key, bytes.NewReader(nil), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
	if fsStore.Driver() != DriverFilesystem || fsStore.Root() == "" {
		t.Fatalf("unexpected driver or root")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Config{Driver: "invalid"}); err == nil {
		t.Fatalf("expected error for invalid driver")
	}
	m, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || m.Driver() != DriverMemory {
		t.Fatalf("expected memory store, got %v %v", m, err)
	}
	f, err := Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || f.Driver() != DriverFilesystem {
		t.Fatalf("expected default fs store, got %v %v", f, err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected bucket required error")
	}
}
