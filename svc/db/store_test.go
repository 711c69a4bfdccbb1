package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cinderbin/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(n int) *int { return &n }

func seedPaste(t *testing.T, s *Store, id string, expiresAt time.Time, maxViews *int) {
	t.Helper()
	p := &domain.Paste{
		ID:        id,
		Content:   "hello",
		ExpiresAt: expiresAt,
		MaxViews:  maxViews,
		CreatedAt: time.Now(),
	}
	if err := s.CreatePaste(context.Background(), p); err != nil {
		t.Fatalf("seed paste: %v", err)
	}
}

func seedUpload(t *testing.T, s *Store, id string, expiresAt time.Time) {
	t.Helper()
	u := &domain.Upload{
		ID:        id,
		Filename:  id + ".txt",
		URL:       "/blobs/" + id,
		BlobPath:  "uploads/" + id,
		Size:      5,
		Mime:      "text/plain",
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := s.CreateUpload(context.Background(), u); err != nil {
		t.Fatalf("seed upload: %v", err)
	}
}

func TestGetPasteNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPaste(context.Background(), "nope")
	if err != domain.ErrPasteNotFound {
		t.Errorf("expected ErrPasteNotFound, got %v", err)
	}
}

func TestConsumeViewHonorsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	seedPaste(t, s, "p1", now.Add(time.Hour), intPtr(2))

	for i := 0; i < 2; i++ {
		ok, err := s.ConsumeView(ctx, "p1", now)
		if err != nil {
			t.Fatalf("ConsumeView failed: %v", err)
		}
		if !ok {
			t.Fatalf("view %d not granted", i+1)
		}
	}
	ok, err := s.ConsumeView(ctx, "p1", now)
	if err != nil {
		t.Fatalf("ConsumeView failed: %v", err)
	}
	if ok {
		t.Error("view granted past the limit")
	}

	p, err := s.GetPaste(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPaste failed: %v", err)
	}
	if p.Views != 2 {
		t.Errorf("expected views=2, got %d", p.Views)
	}
}

func TestConsumeViewRejectsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	seedPaste(t, s, "p1", now.Add(-time.Minute), nil)

	ok, err := s.ConsumeView(ctx, "p1", now)
	if err != nil {
		t.Fatalf("ConsumeView failed: %v", err)
	}
	if ok {
		t.Error("view granted on an expired paste")
	}
}

func TestConsumeViewMissingPaste(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.ConsumeView(context.Background(), "nope", time.Now())
	if err != nil {
		t.Fatalf("ConsumeView failed: %v", err)
	}
	if ok {
		t.Error("view granted for a missing paste")
	}
}

func TestClaimUploads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	seedPaste(t, s, "p1", now.Add(time.Hour), nil)
	seedPaste(t, s, "p2", now.Add(time.Hour), nil)
	seedUpload(t, s, "u1", now.Add(time.Hour))
	seedUpload(t, s, "u2", now.Add(time.Hour))

	n, err := s.ClaimUploads(ctx, "p1", []string{"u1", "u2", "stale"})
	if err != nil {
		t.Fatalf("ClaimUploads failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 claimed, got %d", n)
	}

	// Already-claimed uploads cannot be reassigned.
	n, err = s.ClaimUploads(ctx, "p2", []string{"u1"})
	if err != nil {
		t.Fatalf("ClaimUploads failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 reclaimed, got %d", n)
	}

	p, err := s.GetPaste(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPaste failed: %v", err)
	}
	if len(p.Uploads) != 2 {
		t.Errorf("expected 2 attached uploads, got %d", len(p.Uploads))
	}
}

func TestDeletePasteCascadesUploads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	seedPaste(t, s, "p1", now.Add(time.Hour), nil)
	seedUpload(t, s, "u1", now.Add(time.Hour))
	if _, err := s.ClaimUploads(ctx, "p1", []string{"u1"}); err != nil {
		t.Fatalf("ClaimUploads failed: %v", err)
	}

	if err := s.DeletePaste(ctx, "p1"); err != nil {
		t.Fatalf("DeletePaste failed: %v", err)
	}
	if _, err := s.GetUpload(ctx, "u1"); err != domain.ErrUploadNotFound {
		t.Errorf("expected cascade to remove upload, got %v", err)
	}
}

func TestExpiredQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	seedPaste(t, s, "live", now.Add(time.Hour), nil)
	seedPaste(t, s, "dead", now.Add(-time.Hour), nil)
	seedUpload(t, s, "ulive", now.Add(time.Hour))
	seedUpload(t, s, "udead", now.Add(-time.Hour))

	pastes, err := s.ExpiredPastes(ctx, now, 100)
	if err != nil {
		t.Fatalf("ExpiredPastes failed: %v", err)
	}
	if len(pastes) != 1 || pastes[0].ID != "dead" {
		t.Errorf("unexpected expired pastes: %v", pastes)
	}

	ups, err := s.ExpiredUploads(ctx, now, 100)
	if err != nil {
		t.Fatalf("ExpiredUploads failed: %v", err)
	}
	if len(ups) != 1 || ups[0].ID != "udead" {
		t.Errorf("unexpected expired uploads: %v", ups)
	}
}

func TestPasteExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPaste(t, s, "p1", time.Now().Add(time.Hour), nil)

	exists, err := s.PasteExists(ctx, "p1")
	if err != nil {
		t.Fatalf("PasteExists failed: %v", err)
	}
	if !exists {
		t.Error("existing paste not found")
	}
	exists, err = s.PasteExists(ctx, "nope")
	if err != nil {
		t.Fatalf("PasteExists failed: %v", err)
	}
	if exists {
		t.Error("missing paste reported existing")
	}
}
