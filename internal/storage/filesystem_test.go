package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), "http://localhost:8080", "test-secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	locator, err := s.Upload(ctx, "outputs/job-1/1.jpg", []byte("payload"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if locator != "storage://outputs/job-1/1.jpg" {
		t.Fatalf("Upload locator = %q", locator)
	}

	data, err := s.Download(ctx, "outputs/job-1/1.jpg")
	if err != nil || string(data) != "payload" {
		t.Fatalf("Download = %q, %v", data, err)
	}

	ok, err := s.Exists(ctx, "outputs/job-1/1.jpg")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	if err := s.Delete(ctx, "outputs/job-1/1.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Download(ctx, "outputs/job-1/1.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Download after delete = %v, want ErrNotFound", err)
	}
}

func TestFileStoreListPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, key := range []string{"results/a/pack.zip", "results/b/pack.zip", "uploads/a/original.jpg"} {
		if _, err := s.Upload(ctx, key, []byte("x"), "application/octet-stream"); err != nil {
			t.Fatalf("Upload(%s): %v", key, err)
		}
	}

	keys, err := s.List(ctx, "results/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 || keys[0] != "results/a/pack.zip" || keys[1] != "results/b/pack.zip" {
		t.Fatalf("List = %v", keys)
	}
}

func TestFileStoreSignedURL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	signed, err := s.SignedURL(ctx, "results/job-1/pack.zip", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed URL: %v", err)
	}
	if !strings.HasPrefix(u.Path, "/static/results/job-1/pack.zip") {
		t.Fatalf("signed path = %q", u.Path)
	}

	q := u.Query()
	if !s.VerifyStaticToken("results/job-1/pack.zip", q.Get("exp"), q.Get("sig")) {
		t.Fatal("fresh token rejected")
	}
	if s.VerifyStaticToken("results/job-2/pack.zip", q.Get("exp"), q.Get("sig")) {
		t.Fatal("token accepted for a different key")
	}
	if s.VerifyStaticToken("results/job-1/pack.zip", q.Get("exp"), "deadbeef") {
		t.Fatal("forged signature accepted")
	}
}

func TestFileStoreExpiredToken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now()
	s.now = func() time.Time { return base }

	signed, err := s.SignedURL(ctx, "a.jpg", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	q, _ := url.Parse(signed)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if s.VerifyStaticToken("a.jpg", q.Query().Get("exp"), q.Query().Get("sig")) {
		t.Fatal("expired token accepted")
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"uploads/a/original.jpg", "uploads/a/original.jpg", true},
		{"/leading/slash.jpg", "leading/slash.jpg", true},
		{"./dotted/key.jpg", "dotted/key.jpg", true},
		{"../escape.jpg", "", false},
		{"a/../../escape.jpg", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.key)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", tc.key, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("sanitizeKey(%q) accepted, want error", tc.key)
		}
	}
}

func TestLocatorHelpers(t *testing.T) {
	if got := Locator("a/b.jpg"); got != "storage://a/b.jpg" {
		t.Fatalf("Locator = %q", got)
	}
	key, err := KeyFromLocator("storage://a/b.jpg")
	if err != nil || key != "a/b.jpg" {
		t.Fatalf("KeyFromLocator = %q, %v", key, err)
	}
	if _, err := KeyFromLocator("https://example.com/a.jpg"); err == nil {
		t.Fatal("KeyFromLocator accepted a plain URL")
	}
	if _, err := KeyFromLocator("storage://"); err == nil {
		t.Fatal("KeyFromLocator accepted an empty key")
	}
}

func TestResolveURLPassThrough(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := ResolveURL(ctx, s, "https://cdn.example.com/x.jpg", time.Hour)
	if err != nil || got != "https://cdn.example.com/x.jpg" {
		t.Fatalf("ResolveURL(plain) = %q, %v", got, err)
	}

	signed, err := ResolveURL(ctx, s, "storage://a.jpg", time.Hour)
	if err != nil || !strings.Contains(signed, "/static/a.jpg?") {
		t.Fatalf("ResolveURL(locator) = %q, %v", signed, err)
	}
}
