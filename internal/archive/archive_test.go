package archive

import (
	"errors"
	"testing"
	"time"

	"lodestar/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestWriteReadSource(t *testing.T) {
	s := newTestStore(t)
	prov := core.Provenance{URL: "https://www.youtube.com/watch?v=abc123", Source: "Some Channel", FetchedAt: time.Now().UTC()}

	path, err := s.WriteSource(core.KindYouTubeVideo, "abc123", prov, []byte("hello transcript"), false)
	if err != nil {
		t.Fatalf("WriteSource failed: %v", err)
	}
	if path == "" {
		t.Fatalf("expected non-empty archive path")
	}

	raw, gotProv, err := s.ReadSource(core.KindYouTubeVideo, "abc123")
	if err != nil {
		t.Fatalf("ReadSource failed: %v", err)
	}
	if string(raw) != "hello transcript" {
		t.Errorf("expected raw text roundtrip, got %q", raw)
	}
	if gotProv.URL != prov.URL {
		t.Errorf("expected provenance URL %q, got %q", prov.URL, gotProv.URL)
	}
}

func TestWriteSourceRejectsOverwriteByDefault(t *testing.T) {
	s := newTestStore(t)
	prov := core.Provenance{URL: "https://example.com/post", FetchedAt: time.Now().UTC()}

	if _, err := s.WriteSource(core.KindWebArticle, "post-dup", prov, []byte("first"), false); err != nil {
		t.Fatalf("WriteSource failed: %v", err)
	}
	if _, err := s.WriteSource(core.KindWebArticle, "post-dup", prov, []byte("second"), false); !errors.Is(err, ErrAlreadyWritten) {
		t.Fatalf("expected ErrAlreadyWritten, got %v", err)
	}

	raw, _, err := s.ReadSource(core.KindWebArticle, "post-dup")
	if err != nil {
		t.Fatalf("ReadSource failed: %v", err)
	}
	if string(raw) != "first" {
		t.Errorf("expected source unchanged after rejected overwrite, got %q", raw)
	}

	if _, err := s.WriteSource(core.KindWebArticle, "post-dup", prov, []byte("second"), true); err != nil {
		t.Fatalf("WriteSource with overwrite=true failed: %v", err)
	}
	raw, _, err = s.ReadSource(core.KindWebArticle, "post-dup")
	if err != nil {
		t.Fatalf("ReadSource failed: %v", err)
	}
	if string(raw) != "second" {
		t.Errorf("expected source overwritten, got %q", raw)
	}
}

func TestAppendLLMOutputVersions(t *testing.T) {
	s := newTestStore(t)
	prov := core.Provenance{URL: "https://example.com/post", FetchedAt: time.Now().UTC()}
	if _, err := s.WriteSource(core.KindWebArticle, "post-1", prov, []byte("body"), false); err != nil {
		t.Fatalf("WriteSource failed: %v", err)
	}

	_, attempt1, err := s.AppendLLMOutput(core.KindWebArticle, "post-1", "structured_metadata", core.LLMOutput{Model: "gemini"})
	if err != nil {
		t.Fatalf("AppendLLMOutput failed: %v", err)
	}
	if attempt1 != 1 {
		t.Fatalf("expected first attempt to be 1, got %d", attempt1)
	}

	_, attempt2, err := s.AppendLLMOutput(core.KindWebArticle, "post-1", "structured_metadata", core.LLMOutput{Model: "gemini"})
	if err != nil {
		t.Fatalf("AppendLLMOutput failed: %v", err)
	}
	if attempt2 != 2 {
		t.Fatalf("expected second attempt to be 2, got %d", attempt2)
	}

	latest, ok, err := s.ReadLatestLLMOutput(core.KindWebArticle, "post-1", "structured_metadata")
	if err != nil {
		t.Fatalf("ReadLatestLLMOutput failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected a latest output to exist")
	}
	if latest.Attempt != 2 {
		t.Errorf("expected latest attempt 2, got %d", latest.Attempt)
	}
}

func TestProcessingHistoryAppendOnly(t *testing.T) {
	s := newTestStore(t)
	prov := core.Provenance{URL: "https://example.com/post", FetchedAt: time.Now().UTC()}
	if _, err := s.WriteSource(core.KindWebArticle, "post-2", prov, []byte("body"), false); err != nil {
		t.Fatalf("WriteSource failed: %v", err)
	}

	if err := s.AppendProcessingRecord(core.KindWebArticle, "post-2", core.ProcessingRecord{Status: core.StatusOK, CodeVersion: "v1"}); err != nil {
		t.Fatalf("AppendProcessingRecord failed: %v", err)
	}
	if err := s.AppendProcessingRecord(core.KindWebArticle, "post-2", core.ProcessingRecord{Status: core.StatusFailed, CodeVersion: "v1", Error: "boom"}); err != nil {
		t.Fatalf("AppendProcessingRecord failed: %v", err)
	}

	history, err := s.ProcessingHistory(core.KindWebArticle, "post-2")
	if err != nil {
		t.Fatalf("ProcessingHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
	if history[0].Status != core.StatusOK || history[1].Status != core.StatusFailed {
		t.Errorf("expected records in append order, got %+v", history)
	}
}

func TestIterate(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	ids := []string{"vid-a", "vid-b", "vid-c"}
	for _, id := range ids {
		if _, err := s.WriteSource(core.KindYouTubeVideo, id, core.Provenance{FetchedAt: now}, []byte("x"), false); err != nil {
			t.Fatalf("WriteSource(%s) failed: %v", id, err)
		}
	}

	var seen []string
	err := s.Iterate(core.KindYouTubeVideo, func(externalID string) error {
		seen = append(seen, externalID)
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	if len(seen) != len(ids) {
		t.Fatalf("expected %d items, got %d", len(ids), len(seen))
	}
}
