package config

import (
	"os"
	"testing"
)

func resetEnv(t *testing.T) {
	t.Helper()
	Reset()
	os.Unsetenv("LODESTAR_DATABASE_URL")
	os.Unsetenv("DATABASE_URL")
}

func TestLoadDefaults(t *testing.T) {
	resetEnv(t)
	os.Setenv("GEMINI_API_KEY", "test-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Embedder.Global.Dim != 1024 {
		t.Errorf("expected global embedder dim 1024, got %d", cfg.Embedder.Global.Dim)
	}
	if cfg.Embedder.Chunk.Dim != 1024 {
		t.Errorf("expected chunk embedder dim 1024, got %d", cfg.Embedder.Chunk.Dim)
	}
	if cfg.Vocabulary.Root == "" {
		t.Error("expected a default vocabulary root")
	}
	if cfg.Normalizer.NeighborsK != 5 {
		t.Errorf("expected default neighbors_k 5, got %d", cfg.Normalizer.NeighborsK)
	}
}

func TestValidateConfigRejectsBadDimensions(t *testing.T) {
	resetEnv(t)
	cfg := &Config{
		Archive:    Archive{Root: "x"},
		Vocabulary: Vocabulary{Root: "x"},
		Queue:      Queue{Root: "x"},
		Embedder: Embedder{
			Global: EmbedderModel{Dim: 768},
			Chunk:  EmbedderModel{Dim: 1024},
		},
	}
	if err := validateConfig(cfg); err == nil {
		t.Error("expected validation error for mismatched embedder dim")
	}
}

func TestValidateConfigRejectsBadWeights(t *testing.T) {
	resetEnv(t)
	cfg := &Config{
		Archive:    Archive{Root: "x"},
		Vocabulary: Vocabulary{Root: "x"},
		Queue:      Queue{Root: "x"},
		Embedder: Embedder{
			Global: EmbedderModel{Dim: 1024},
			Chunk:  EmbedderModel{Dim: 1024},
		},
		Ranker: Ranker{Weights: map[string]RankWeights{
			"search": {Chunk: 0.5, Global: 0.1, Persona: 0.1, Pref: 0.1},
		}},
	}
	if err := validateConfig(cfg); err == nil {
		t.Error("expected validation error for weights not summing to 1.0")
	}
}
