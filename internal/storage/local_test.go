package storage

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func tokenFromURL(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("invalid signed url %q: %v", link, err)
	}
	return u.Query().Get("token")
}

func TestLocalStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "http://localhost:8080/", "secret")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()
	p := "reports/admin-1/t1/检测数据报表_20240101_20240107.csv"

	if err := store.Upload(ctx, p, []byte("a,b"), "text/csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := store.Upload(ctx, p, []byte("c,d"), "text/csv"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	link, err := store.SignURL(ctx, p, time.Hour)
	if err != nil {
		t.Fatalf("SignURL: %v", err)
	}
	if !strings.HasPrefix(link, "http://localhost:8080/files/download?token=") {
		t.Errorf("link = %s", link)
	}

	full, name, err := store.Resolve(tokenFromURL(t, link))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if name != "检测数据报表_20240101_20240107.csv" {
		t.Errorf("name = %s", name)
	}
	content, _ := os.ReadFile(full)
	if string(content) != "c,d" {
		t.Errorf("content = %q", content)
	}

	if err := store.DeleteMany(ctx, []string{p, p, "reports/missing.csv"}); err != nil {
		t.Errorf("DeleteMany: %v", err)
	}
	if _, _, err := store.Resolve(tokenFromURL(t, link)); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("resolve after delete: got %v", err)
	}
	if _, err := store.SignURL(ctx, p, time.Hour); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("sign missing object: got %v", err)
	}
}

func TestLocalStoreRejectsBadTokens(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir(), "http://localhost:8080", "secret")
	other, _ := NewLocalStore(t.TempDir(), "http://localhost:8080", "other-secret")
	ctx := context.Background()
	store.Upload(ctx, "a.csv", []byte("x"), "text/csv")
	other.Upload(ctx, "a.csv", []byte("x"), "text/csv")

	foreign, _ := other.SignURL(ctx, "a.csv", time.Hour)
	if _, _, err := store.Resolve(tokenFromURL(t, foreign)); !errors.Is(err, ErrInvalidDownloadToken) {
		t.Errorf("foreign signature: got %v", err)
	}

	expired, _ := store.SignURL(ctx, "a.csv", -time.Minute)
	if _, _, err := store.Resolve(tokenFromURL(t, expired)); !errors.Is(err, ErrInvalidDownloadToken) {
		t.Errorf("expired token: got %v", err)
	}

	if _, _, err := store.Resolve("not-a-token"); !errors.Is(err, ErrInvalidDownloadToken) {
		t.Errorf("garbage token: got %v", err)
	}
}

func TestLocalStoreStaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "files")
	store, _ := NewLocalStore(root, "", "secret")

	if err := store.Upload(context.Background(), "../../escape.csv", []byte("x"), "text/csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "escape.csv")); !os.IsNotExist(err) {
		t.Error("upload escaped the storage root")
	}
	if _, err := os.Stat(filepath.Join(root, "escape.csv")); err != nil {
		t.Errorf("file not stored under root: %v", err)
	}

	if err := store.Upload(context.Background(), "/", []byte("x"), "text/csv"); err == nil {
		t.Error("expected error for empty object path")
	}
}
