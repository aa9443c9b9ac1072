// Package llm wraps the Gemini SDK with exactly the two call shapes the
// ingestion pipeline needs: schema-constrained structured generation for
// the Tag Normalizer, and Matryoshka-truncated embeddings for the
// Embedder.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"google.golang.org/genai"

	"lodestar/internal/core"
)

const (
	// DefaultModel is used for both extraction and normalization calls
	// unless a config override names another.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultEmbeddingModel is the only embedding model currently wired.
	DefaultEmbeddingModel = "gemini-embedding-001"
)

// Client wraps the Gemini SDK client with the API key and default model
// resolved at construction time.
type Client struct {
	modelName string
	gClient *genai.Client
}

// NewClient resolves an API key (in order: GEMINI_API_KEY,
// GOOGLE_GEMINI_API_KEY, GOOGLE_AI_API_KEY, gemini.api_key in viper) and
// builds a Gemini client against it.
func NewClient(modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or gemini.api_key in config")
	}

	if modelName == "" {
		modelName = viper.GetString("gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{modelName: modelName, gClient: gClient}, nil
}

// GenerationOptions parameterizes a structured-generation call.
type GenerationOptions struct {
	Model string // overrides the client's default model
	MaxTokens int32
	Temperature float32
	ResponseSchema *genai.Schema // required: GenerateStructured rejects a nil schema
}

// StructuredResult is the raw JSON payload plus usage accounting for one
// schema-constrained generation call.
type StructuredResult struct {
	JSON string
	Usage core.Usage
}

// GenerateStructured issues one prompt against the model and constrains
// the response to the given JSON schema (Phase 1 extraction and
// Phase 2 normalization both call through this). The caller unmarshals
// JSON itself, since the schema shape varies by call site.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, opts GenerationOptions) (StructuredResult, error) {
	if prompt == "" {
		return StructuredResult{}, fmt.Errorf("prompt cannot be empty")
	}
	if opts.ResponseSchema == nil {
		return StructuredResult{}, fmt.Errorf("ResponseSchema is required for structured generation")
	}

	modelName := c.modelName
	if opts.Model != "" {
		modelName = opts.Model
	}

	contents := []*genai.Content{{
			Parts: []*genai.Part{{Text: prompt}},
			Role: "user",
	}}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: opts.ResponseSchema,
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		temp := opts.Temperature
		config.Temperature = &temp
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return StructuredResult{}, fmt.Errorf("failed to generate structured content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return StructuredResult{}, fmt.Errorf("empty response from LLM")
	}

	usage := core.Usage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return StructuredResult{JSON: text, Usage: usage}, nil
}

// EmbeddingResult is one embedding vector plus its usage accounting.
type EmbeddingResult struct {
	Vector []float32
	Usage core.Usage
}

// GenerateEmbedding embeds text at core.EmbeddingDim width using
// Matryoshka output-dimensionality truncation, so both the global and
// chunk embedders share one call shape regardless of the underlying
// model's native dimension.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) (EmbeddingResult, error) {
	if text == "" {
		return EmbeddingResult{}, fmt.Errorf("text cannot be empty")
	}

	contents := []*genai.Content{{
			Parts: []*genai.Part{{Text: text}},
			Role: "user",
	}}

	dims := int32(core.EmbeddingDim)
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, DefaultEmbeddingModel, contents, config)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return EmbeddingResult{}, fmt.Errorf("no embedding values returned from API")
	}

	values := resp.Embeddings[0].Values
	if len(values) != core.EmbeddingDim {
		return EmbeddingResult{}, fmt.Errorf("embedding returned %d dims, want %d", len(values), core.EmbeddingDim)
	}

	return EmbeddingResult{Vector: values}, nil
}

// ModelName returns the model this client defaults to for generation.
func (c *Client) ModelName() string {
	return c.modelName
}

// Close releases the underlying SDK client's resources, if any.
func (c *Client) Close() {}
