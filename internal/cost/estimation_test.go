package cost

import (
	"testing"
)

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "empty string",
			input:    "",
			expected: 0,
		},
		{
			name:     "simple text",
			input:    "Hello world",
			expected: 4, // 11 chars / 3.5 ≈ 3.14, ceil = 4
		},
		{
			name:     "longer text",
			input:    "This is a longer piece of text that should result in more tokens.",
			expected: 19, // 65 chars / 3.5 ≈ 18.57, ceil = 19
		},
		{
			name:     "text with newlines",
			input:    "Line 1\nLine 2\nLine 3",
			expected: 6, // 20 chars (newlines replaced) / 3.5 ≈ 5.71, ceil = 6
		},
		{
			name:     "text with extra whitespace",
			input:    "  Text with   extra    spaces  ",
			expected: 8, // After trimming: "Text with   extra    spaces" = 27 chars / 3.5 ≈ 7.71, ceil = 8
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTokenCount(tt.input)
			if got != tt.expected {
				t.Errorf("EstimateTokenCount(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEstimateItem(t *testing.T) {
	item := EstimateItem("youtube:abc123", "some raw transcript text repeated many times over", 3, "gemini-flash-lite-latest", "gemini-embedding-001")

	if item.ExternalID != "youtube:abc123" {
		t.Errorf("expected external id to roundtrip, got %s", item.ExternalID)
	}
	if item.ChunkCount != 3 {
		t.Errorf("expected chunk count 3, got %d", item.ChunkCount)
	}
	if item.TotalCost <= 0 {
		t.Errorf("expected positive total cost, got %f", item.TotalCost)
	}
	if item.TotalCost != item.ExtractionCost+item.NormalizationCost+item.EmbeddingCost {
		t.Errorf("total cost should equal sum of components")
	}
}

func TestEstimateBatch(t *testing.T) {
	lengths := map[string]int{
		"a": 1000,
		"b": 20000,
	}
	est := EstimateBatch([]string{"a", "b"}, lengths, "gemini-flash-lite-latest", "gemini-embedding-001")

	if len(est.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(est.Items))
	}
	if est.TotalCost <= 0 {
		t.Errorf("expected positive total cost, got %f", est.TotalCost)
	}
	// the larger document should be estimated to cost more
	var costA, costB float64
	for _, item := range est.Items {
		switch item.ExternalID {
		case "a":
			costA = item.TotalCost
		case "b":
			costB = item.TotalCost
		}
	}
	if costB <= costA {
		t.Errorf("expected longer document (b) to cost more than shorter (a): %f vs %f", costB, costA)
	}
}

func TestUnknownModelFallsBackToDefault(t *testing.T) {
	item := EstimateItem("x", "short text", 1, "unknown-model", "unknown-embedder")
	if item.TotalCost <= 0 {
		t.Errorf("expected fallback pricing to still produce a positive estimate")
	}
}
