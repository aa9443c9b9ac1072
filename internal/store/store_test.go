package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewCreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ratelimit.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected database file to be created")
	}
}

func TestRecordAndCountSince(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "ratelimit.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	now := time.Now()
	if err := s.RecordAttempt("youtube", true, now); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if err := s.RecordAttempt("youtube", false, now); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if err := s.RecordAttempt("web", true, now); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	manual, scheduled, err := s.CountSince("youtube", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if manual != 1 || scheduled != 1 {
		t.Errorf("expected 1 manual and 1 scheduled, got manual=%d scheduled=%d", manual, scheduled)
	}
}

func TestCountSinceExcludesOlderEvents(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "ratelimit.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	old := time.Now().Add(-time.Hour)
	if err := s.RecordAttempt("youtube", true, old); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	manual, _, err := s.CountSince("youtube", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if manual != 0 {
		t.Errorf("expected event older than the window to be excluded, got manual=%d", manual)
	}
}

func TestPruneRemovesOldEvents(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "ratelimit.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	old := time.Now().Add(-48 * time.Hour)
	if err := s.RecordAttempt("youtube", true, old); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if err := s.Prune(time.Now().Add(-24 * time.Hour)); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	manual, _, err := s.CountSince("youtube", old.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if manual != 0 {
		t.Errorf("expected pruned event to no longer count, got manual=%d", manual)
	}
}
