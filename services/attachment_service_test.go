package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/files/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	file := makeFileHeader(t, "photo.PNG", "image/png", []byte("pixels"))
	stored, err := store.Store(ctx, file)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored.Mime != "image/png" {
		t.Fatalf("mime = %q, want image/png", stored.Mime)
	}
	if stored.Size != int64(len("pixels")) {
		t.Fatalf("size = %d, want %d", stored.Size, len("pixels"))
	}
	if filepath.Ext(stored.Path) != ".png" {
		t.Fatalf("path = %q, want a lowercased .png extension", stored.Path)
	}

	content, err := os.ReadFile(filepath.Join(dir, stored.Path))
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(content) != "pixels" {
		t.Fatalf("content = %q, want pixels", content)
	}

	if got := store.URLFor(stored.Path); got != "/files/"+stored.Path {
		t.Fatalf("url = %q, want /files/%s", got, stored.Path)
	}

	if err := store.Remove(ctx, stored.Path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, stored.Path)); !os.IsNotExist(err) {
		t.Fatal("blob should be gone after Remove")
	}
	// Removing a missing blob is not an error.
	if err := store.Remove(ctx, stored.Path); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
