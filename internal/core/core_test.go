package core

import (
	"testing"
	"time"
)

func TestContentItemID(t *testing.T) {
	item := ContentItem{
		ID:         "youtube:abc123",
		Kind:       KindYouTubeVideo,
		ExternalID: "abc123",
		Provenance: Provenance{
			URL:       "https://www.youtube.com/watch?v=abc123",
			Source:    "Some Channel",
			FetchedAt: time.Now().UTC(),
		},
	}

	if item.ID != "youtube:abc123" {
		t.Errorf("expected id 'youtube:abc123', got %s", item.ID)
	}
	if item.Kind != KindYouTubeVideo {
		t.Errorf("expected kind %s, got %s", KindYouTubeVideo, item.Kind)
	}
}

func TestUsageRecordAdd(t *testing.T) {
	var rec UsageRecord
	rec.Add(Usage{InputTokens: 100, OutputTokens: 20, CostUSD: 0.001})
	rec.Add(Usage{InputTokens: 50, OutputTokens: 10, CostUSD: 0.0005})

	if rec.TotalInputTokens != 150 {
		t.Errorf("expected 150 input tokens, got %d", rec.TotalInputTokens)
	}
	if rec.TotalOutputTokens != 30 {
		t.Errorf("expected 30 output tokens, got %d", rec.TotalOutputTokens)
	}
	if rec.TotalCostUSD != 0.0015 {
		t.Errorf("expected cost 0.0015, got %f", rec.TotalCostUSD)
	}
}

func TestChunkID(t *testing.T) {
	chunk := Chunk{
		ID:        "youtube:abc123:chunk_0",
		ContentID: "youtube:abc123",
		Ordinal:   0,
		Text:      "hello world",
	}

	if chunk.ID != "youtube:abc123:chunk_0" {
		t.Errorf("unexpected chunk id: %s", chunk.ID)
	}
}

func TestNormalizedMetadataDefaults(t *testing.T) {
	meta := NormalizedMetadata{}
	if meta.SubjectMatter != nil {
		t.Errorf("expected nil subject matter by default")
	}
	meta.SubjectMatter = append(meta.SubjectMatter, "machine-learning")
	if len(meta.SubjectMatter) != 1 {
		t.Errorf("expected 1 subject matter tag")
	}
}
