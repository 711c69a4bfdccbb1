package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cinderbin/svc/util"
)

func TestMain(m *testing.M) {
	util.InitLog("error", false)
	os.Exit(m.Run())
}

func TestLocalPutDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/blobs")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()

	res, err := store.Put(ctx, "uploads/123-abc-notes.txt", []byte("hello"), "text/plain")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if res.URL != "/blobs/uploads/123-abc-notes.txt" {
		t.Errorf("unexpected url: %s", res.URL)
	}
	if res.Pathname != "uploads/123-abc-notes.txt" {
		t.Errorf("unexpected pathname: %s", res.Pathname)
	}
	if res.Size != 5 {
		t.Errorf("unexpected size: %d", res.Size)
	}

	if err := store.Delete(ctx, res.Pathname); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Deleting an already-gone blob is not an error.
	if err := store.Delete(ctx, res.Pathname); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "/blobs")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"../outside.txt", "/etc/passwd", "a/../../b"} {
		if _, err := store.Put(ctx, key, []byte("x"), "text/plain"); err == nil {
			t.Errorf("Put accepted traversal key %q", key)
		}
		if err := store.Delete(ctx, key); err == nil {
			t.Errorf("Delete accepted traversal key %q", key)
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("traversal attempt wrote into root: %v", entries)
	}
}

func TestLocalPutCreatesSubdirs(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "/blobs")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	if _, err := store.Put(context.Background(), "a/b/c.txt", []byte("x"), "text/plain"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a", "b", "c.txt")); err != nil {
		t.Errorf("blob file missing: %v", err)
	}
}
