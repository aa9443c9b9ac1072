package vocabulary

import (
	"testing"
	"time"

	"lodestar/internal/archive"
	"lodestar/internal/core"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func seedArchiveItem(t *testing.T, store *archive.Store, id string, tags []string) {
	t.Helper()
	prov := core.Provenance{URL: "https://example.com/" + id, FetchedAt: time.Now().UTC()}
	if _, err := store.WriteSource(core.KindWebArticle, id, prov, []byte("body"), false); err != nil {
		t.Fatalf("WriteSource failed: %v", err)
	}
	metadata := core.NormalizedMetadata{Title: id, SubjectMatter: tags}
	if _, _, err := store.AppendLLMOutput(core.KindWebArticle, id, "structured_metadata", core.LLMOutput{
		Model: "gemini", Value: metadata,
	}); err != nil {
		t.Fatalf("AppendLLMOutput failed: %v", err)
	}
}

func TestSeedFromCorpus(t *testing.T) {
	archiveStore, err := archive.New(t.TempDir())
	if err != nil {
		t.Fatalf("archive.New failed: %v", err)
	}
	seedArchiveItem(t, archiveStore, "post-1", []string{"llm agents", "rag"})
	seedArchiveItem(t, archiveStore, "post-2", []string{"llm agents"})

	m := newTestManager(t)
	vocab, err := m.SeedFromCorpus(archiveStore, 50)
	if err != nil {
		t.Fatalf("SeedFromCorpus failed: %v", err)
	}
	if vocab.Version != "v1" {
		t.Errorf("expected v1, got %s", vocab.Version)
	}
	entry, ok := vocab.Entries["llm agents"]
	if !ok {
		t.Fatal("expected 'llm agents' to be seeded")
	}
	if entry.Frequency != 2 {
		t.Errorf("expected frequency 2, got %d", entry.Frequency)
	}

	version, ok, err := m.ActiveVersion()
	if err != nil || !ok || version != "v1" {
		t.Fatalf("expected active version v1, got %q ok=%v err=%v", version, ok, err)
	}
}

func TestSeedFromCorpusOnlyOnce(t *testing.T) {
	archiveStore, err := archive.New(t.TempDir())
	if err != nil {
		t.Fatalf("archive.New failed: %v", err)
	}
	m := newTestManager(t)
	if _, err := m.SeedFromCorpus(archiveStore, 50); err != nil {
		t.Fatalf("first seed failed: %v", err)
	}
	if _, err := m.SeedFromCorpus(archiveStore, 50); err == nil {
		t.Error("expected error re-seeding an already-seeded vocabulary")
	}
}

func TestCanonicalOfCaseInsensitiveAndAlias(t *testing.T) {
	vocab := &core.Vocabulary{
		Entries: map[string]*core.VocabularyEntry{
			"ai-agents": {Canonical: "ai-agents"},
		},
		AliasToCanonical: map[string]string{
			"agents": "ai-agents",
		},
	}

	if canonical, ok := CanonicalOf(vocab, "AI-Agents"); !ok || canonical != "ai-agents" {
		t.Errorf("expected case-insensitive match, got %q ok=%v", canonical, ok)
	}
	if canonical, ok := CanonicalOf(vocab, "agents"); !ok || canonical != "ai-agents" {
		t.Errorf("expected alias match, got %q ok=%v", canonical, ok)
	}
	if _, ok := CanonicalOf(vocab, "unrelated"); ok {
		t.Error("expected no match for unrelated tag")
	}
}

func TestConsolidate(t *testing.T) {
	m := newTestManager(t)
	archiveStore, err := archive.New(t.TempDir())
	if err != nil {
		t.Fatalf("archive.New failed: %v", err)
	}
	seedArchiveItem(t, archiveStore, "post-1", []string{"agents"})
	v1, err := m.SeedFromCorpus(archiveStore, 50)
	if err != nil {
		t.Fatalf("SeedFromCorpus failed: %v", err)
	}

	v2, err := m.Consolidate(v1, ConsolidationProposals{
		Renames: map[string]string{"agents": "ai-agents"},
	})
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}
	if v2.Version != "v2" {
		t.Errorf("expected v2, got %s", v2.Version)
	}
	if canonical, ok := CanonicalOf(v2, "agents"); !ok || canonical != "ai-agents" {
		t.Errorf("expected renamed alias to resolve, got %q ok=%v", canonical, ok)
	}

	// the older version must remain untouched
	if _, ok := v1.Entries["agents"]; !ok {
		t.Error("expected v1 to be unmutated by consolidation")
	}
}

func TestTopN(t *testing.T) {
	vocab := &core.Vocabulary{
		Entries: map[string]*core.VocabularyEntry{
			"a": {Canonical: "a", Frequency: 1},
			"b": {Canonical: "b", Frequency: 5},
			"c": {Canonical: "c", Frequency: 3},
		},
	}
	top := TopN(vocab, 2)
	if len(top) != 2 || top[0] != "b" || top[1] != "c" {
		t.Errorf("expected [b c], got %v", top)
	}
}
