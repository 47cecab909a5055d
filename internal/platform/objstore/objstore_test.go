package objstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			info, err := store.Put(ctx, "generated/availability.json", "application/json", strings.NewReader(`[{"location_id":10}]`))
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len(`[{"location_id":10}]`)) {
				t.Errorf("size: want %d, got %d", len(`[{"location_id":10}]`), info.Size)
			}

			rc, got, err := store.Get(ctx, "generated/availability.json")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer rc.Close()

			if got.ContentType != "application/json" {
				t.Errorf("content type: want application/json, got %s", got.ContentType)
			}
			data, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(data) != `[{"location_id":10}]` {
				t.Errorf("content mismatch: %s", data)
			}
		})
	}
}

func TestStore_PutReplaces(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.Put(ctx, "a.json", "application/json", strings.NewReader("old")); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := store.Put(ctx, "a.json", "application/json", strings.NewReader("new content")); err != nil {
				t.Fatalf("replace: %v", err)
			}

			rc, info, err := store.Get(ctx, "a.json")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer rc.Close()

			data, _ := io.ReadAll(rc)
			if string(data) != "new content" {
				t.Errorf("want replaced content, got %s", data)
			}
			if info.Size != int64(len("new content")) {
				t.Errorf("size not updated: %d", info.Size)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, _, err := store.Get(context.Background(), "nope.json"); !errors.Is(err, ErrObjectNotFound) {
				t.Fatalf("want ErrObjectNotFound, got %v", err)
			}
			if _, err := store.Stat(context.Background(), "nope.json"); !errors.Is(err, ErrObjectNotFound) {
				t.Fatalf("stat: want ErrObjectNotFound, got %v", err)
			}
		})
	}
}

func TestStore_Stat(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Put(ctx, "b.csv", "text/csv", strings.NewReader("a,b\n")); err != nil {
				t.Fatalf("put: %v", err)
			}

			info, err := store.Stat(ctx, "b.csv")
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if info.Size != 4 || info.UpdatedAt.IsZero() {
				t.Errorf("unexpected info: %+v", info)
			}
		})
	}
}

func TestFileStore_PathEscapeContained(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	// An escaping name must stay inside the root.
	if _, err := fs.Put(context.Background(), "../../etc/passwd.json", "application/json", strings.NewReader("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(fs.path("../../etc/passwd.json"), fs.root) {
		t.Error("object path escaped the store root")
	}
}
