// Package embed provides the two embedding functions used throughout
// ingestion and retrieval: embed_global for document-level vectors
// (content items and personas) and embed_chunk for per-chunk vectors.
// Both emit core.EmbeddingDim-width vectors so the ranker can compare
// them interchangeably.
package embed

import (
	"context"
	"fmt"

	"lodestar/internal/config"
	"lodestar/internal/core"
	"lodestar/internal/cost"
	"lodestar/internal/llm"
)

// Embedder wraps an LLM client with the slicing/mean-pooling behavior
// the document embedder needs when a source exceeds its context
// budget.
type Embedder struct {
	client *llm.Client
	cfg config.Embedder
}

func New(client *llm.Client, cfg config.Embedder) *Embedder {
	return &Embedder{client: client, cfg: cfg}
}

// Global embeds a full document for the content collection. If text
// exceeds the global model's context budget it is split into 2-3
// large slices, each embedded independently, and mean-pooled into one
// vector; the slice vectors themselves are never persisted.
func (e *Embedder) Global(ctx context.Context, text string) (core.Usage, []float32, error) {
	slices := splitToContextBudget(text, e.cfg.Global.Context)

	if len(slices) == 1 {
		result, err := e.client.GenerateEmbedding(ctx, slices[0])
		if err != nil {
			return core.Usage{}, nil, fmt.Errorf("embed global: %w", err)
		}
		return result.Usage, result.Vector, nil
	}

	vectors := make([][]float32, 0, len(slices))
	var usage core.Usage
	for _, s := range slices {
		result, err := e.client.GenerateEmbedding(ctx, s)
		if err != nil {
			return core.Usage{}, nil, fmt.Errorf("embed global slice: %w", err)
		}
		vectors = append(vectors, result.Vector)
		usage.InputTokens += result.Usage.InputTokens
		usage.OutputTokens += result.Usage.OutputTokens
		usage.CostUSD += result.Usage.CostUSD
	}

	return usage, meanPool(vectors), nil
}

// Chunk embeds a single chunk's text for the content_chunks collection.
// Chunks are already bounded to the chunk embedder's context budget by
// the chunker, so no slicing is needed here.
func (e *Embedder) Chunk(ctx context.Context, text string) (core.Usage, []float32, error) {
	result, err := e.client.GenerateEmbedding(ctx, text)
	if err != nil {
		return core.Usage{}, nil, fmt.Errorf("embed chunk: %w", err)
	}
	return result.Usage, result.Vector, nil
}

// splitToContextBudget returns the text as a single slice if it fits
// the context token budget, otherwise splits it into 2-3 slices of
// equal rune length; cuts fall at fixed rune positions, not at
// whitespace.
func splitToContextBudget(text string, contextTokens int) []string {
	if cost.EstimateTokenCount(text) <= contextTokens {
		return []string{text}
	}

	numSlices := 2
	if cost.EstimateTokenCount(text) > contextTokens*2 {
		numSlices = 3
	}

	runes := []rune(text)
	sliceLen := len(runes) / numSlices
	var slices []string
	for i := 0; i < numSlices; i++ {
		start := i * sliceLen
		end := start + sliceLen
		if i == numSlices-1 || end > len(runes) {
			end = len(runes)
		}
		if start >= end {
			continue
		}
		slices = append(slices, string(runes[start:end]))
	}
	return slices
}

// meanPool averages a set of equal-width vectors into one.
func meanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	out := make([]float32, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			out[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}
