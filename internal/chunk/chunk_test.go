package chunk

import (
	"strings"
	"testing"

	"lodestar/internal/config"
	"lodestar/internal/core"
)

func testTranscriptConfig() config.TranscriptChunker {
	return config.TranscriptChunker{
		TargetTokens:    50,
		HardCapTokens:   200,
		PauseSeconds:    9,
		OverlapSegments: 1,
	}
}

func TestTranscriptFlushesOnTokenBudget(t *testing.T) {
	var segments []core.TranscriptSegment
	for i := 0; i < 40; i++ {
		segments = append(segments, core.TranscriptSegment{
			Start:    float64(i) * 2,
			Duration: 2,
			Text:     "word word word word word",
		})
	}

	chunks := Transcript(segments, testTranscriptConfig())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks from long transcript, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("expected dense ordinals, chunk %d has ordinal %d", i, c.Ordinal)
		}
		if c.StartTime == nil || c.EndTime == nil {
			t.Errorf("chunk %d missing start/end time", i)
		}
	}
}

func TestTranscriptFlushesOnPauseGap(t *testing.T) {
	segments := []core.TranscriptSegment{
		{Start: 0, Duration: 2, Text: "hello there"},
		{Start: 2, Duration: 2, Text: "how are you"},
		// 30 second gap should force a flush regardless of token budget
		{Start: 34, Duration: 2, Text: "much later segment"},
	}

	chunks := Transcript(segments, testTranscriptConfig())
	if len(chunks) != 2 {
		t.Fatalf("expected pause gap to force 2 chunks, got %d", len(chunks))
	}
}

func TestTranscriptEmpty(t *testing.T) {
	if chunks := Transcript(nil, testTranscriptConfig()); chunks != nil {
		t.Errorf("expected nil chunks for empty transcript, got %v", chunks)
	}
}

func testWebConfig() config.WebChunker {
	return config.WebChunker{TargetTokens: 30, HardCapTokens: 120}
}

func TestWebRespectsHeadingBoundary(t *testing.T) {
	doc := core.StructuredDocument{
		Sections: []core.DocSection{
			{Kind: core.SectionParagraph, Text: strings.Repeat("word ", 20)},
			{Kind: core.SectionHeading, Level: 2, Text: "A New Section"},
			{Kind: core.SectionParagraph, Text: strings.Repeat("word ", 20)},
		},
	}

	chunks := Web(doc, testWebConfig())
	if len(chunks) < 2 {
		t.Fatalf("expected heading to force a chunk boundary, got %d chunks", len(chunks))
	}
}

func TestWebDenseOrdinals(t *testing.T) {
	doc := core.StructuredDocument{
		Sections: []core.DocSection{
			{Kind: core.SectionParagraph, Text: strings.Repeat("word ", 50)},
			{Kind: core.SectionParagraph, Text: strings.Repeat("word ", 50)},
			{Kind: core.SectionParagraph, Text: strings.Repeat("word ", 50)},
		},
	}

	chunks := Web(doc, testWebConfig())
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("expected dense ordinals, chunk %d has ordinal %d", i, c.Ordinal)
		}
	}
}

func TestWebEmpty(t *testing.T) {
	if chunks := Web(core.StructuredDocument{}, testWebConfig()); chunks != nil {
		t.Errorf("expected nil chunks for empty document, got %v", chunks)
	}
}
