package normalize

import (
	"strings"
	"testing"

	"lodestar/internal/core"
)

func TestParseMetadataStripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"title\": \"A Title\", \"summary\": \"A summary.\"}\n```"
	metadata, err := parseMetadata(raw)
	if err != nil {
		t.Fatalf("parseMetadata failed: %v", err)
	}
	if metadata.Title != "A Title" {
		t.Errorf("expected title to roundtrip, got %q", metadata.Title)
	}
}

func TestParseMetadataRequiresTitle(t *testing.T) {
	_, err := parseMetadata(`{"summary": "no title here"}`)
	if err == nil {
		t.Error("expected error for metadata missing a title")
	}
}

func TestParseMetadataMalformedJSON(t *testing.T) {
	_, err := parseMetadata(`{not valid json`)
	if err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestBuildNormalizationPromptIncludesNeighborsAndVocabulary(t *testing.T) {
	raw := core.NormalizedMetadata{
		Title:         "Intro to Agents",
		SubjectMatter: []string{"agents"},
	}
	neighbors := []NeighborContext{
		{ContentID: "youtube:abc", Metadata: core.NormalizedMetadata{Title: "Other Video", SubjectMatter: []string{"ai-agents"}}},
	}
	prompt := buildNormalizationPrompt(raw, neighbors, []string{"rag", "llm-agents"})

	if !strings.Contains(prompt, "Other Video") {
		t.Error("expected prompt to include neighbor context")
	}
	if !strings.Contains(prompt, "rag, llm-agents") {
		t.Error("expected prompt to include vocabulary top-N enumeration")
	}
	if !strings.Contains(prompt, "agents") {
		t.Error("expected prompt to include the raw tag being normalized")
	}
}

func TestBuildExtractionPromptTruncatesLongContent(t *testing.T) {
	longText := strings.Repeat("x", 20000)
	prompt := buildExtractionPrompt(longText)
	if len(prompt) > 13000 {
		t.Errorf("expected extraction prompt to truncate source text, got length %d", len(prompt))
	}
}
