package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "images", Key: "exhibitions/42/cover.jpg"}

	modTime := time.Now().Add(-time.Hour).UTC()
	payload := []byte("payload")
	if _, err := store.Put(context.Background(), locator, bytes.NewReader(payload), PutOptions{ModTime: modTime}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if !result.Entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
	}
	if filepath.Base(result.Entry.FilePath) != "exhibitions_42_cover.jpg" {
		t.Fatalf("unexpected file name %s", result.Entry.FilePath)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), Locator{Namespace: "images", Key: "missing"})
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "images", Key: "cache/remove"}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), locator); err == nil || err != ErrNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("removing a missing entry should succeed, got %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "images", Key: "v2"}

	filePath, err := store.Path(locator)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Get(context.Background(), locator); err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStorePutCancelledLeavesNoFile(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "images", Key: "cancelled.jpg"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, locator, strings.NewReader("partial"), PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	dir, _ := store.EnsureNamespace("images")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files after cancelled put, got %d", len(entries))
	}
}

func TestStoreConcurrentPutsSameKey(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Namespace: "images", Key: "same/key.jpg"}
	payload := bytes.Repeat([]byte("x"), 256*1024)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Put(context.Background(), locator, bytes.NewReader(payload), PutOptions{}); err != nil {
				t.Errorf("put error: %v", err)
			}
		}()
	}
	wg.Wait()

	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()
	body, _ := io.ReadAll(result.Reader)
	if !bytes.Equal(body, payload) {
		t.Fatalf("content corrupted by concurrent writers (len=%d)", len(body))
	}
}

func TestStorePurge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"a.jpg", "b/c.jpg", "d"} {
		if _, err := store.Put(ctx, Locator{Namespace: "images", Key: key}, strings.NewReader(key), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if _, err := store.Put(ctx, Locator{Namespace: "bucket", Key: "keep"}, strings.NewReader("keep"), PutOptions{}); err != nil {
		t.Fatalf("put keep: %v", err)
	}

	removed, err := store.Purge(ctx, "images")
	if err != nil {
		t.Fatalf("purge error: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if _, err := store.Stat(ctx, Locator{Namespace: "bucket", Key: "keep"}); err != nil {
		t.Fatalf("purge must not touch other namespaces: %v", err)
	}
}

func TestStorePurgeMissingNamespace(t *testing.T) {
	store := newTestStore(t)
	removed, err := store.Purge(context.Background(), "never-created")
	if err != nil || removed != 0 {
		t.Fatalf("expected (0, nil), got (%d, %v)", removed, err)
	}
}

func TestSanitizeKey(t *testing.T) {
	testCases := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"avatars/u1.png", "avatars_u1.png", false},
		{"exhibitions/42/photos/7.jpg", "exhibitions_42_photos_7.jpg", false},
		{`windows\style`, "windows_style", false},
		{"plain", "plain", false},
		{"", "", true},
		{"..", "", true},
		{".", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			got, err := SanitizeKey(tc.key)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidKey) {
					t.Fatalf("expected ErrInvalidKey for %q, got %v", tc.key, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("SanitizeKey(%q) = %q, %v; want %q", tc.key, got, err, tc.want)
			}
		})
	}
}

func TestPathRejectsBadNamespace(t *testing.T) {
	store := newTestStore(t)
	for _, ns := range []string{"", "..", "a/b"} {
		if _, err := store.Path(Locator{Namespace: ns, Key: "k"}); err == nil {
			t.Fatalf("expected error for namespace %q", ns)
		}
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
