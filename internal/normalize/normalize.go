// Package normalize implements the two-phase Tag Normalizer:
// Phase 1 extracts a structured metadata block from raw content with no
// vocabulary bias; Phase 2 consolidates that block's tags against the
// active controlled vocabulary using semantic-neighbor context.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lodestar/internal/core"
	"lodestar/internal/llm"
)

// NeighborContext is one semantically-similar, already-normalized
// content item handed to Phase 2 as grounding for how similar content
// has already been tagged.
type NeighborContext struct {
	ContentID string
	Metadata core.NormalizedMetadata
}

// Normalizer wraps an LLM client with the model name used for both
// phases.
type Normalizer struct {
	client *llm.Client
	model string
	maxParseRetries int
}

func New(client *llm.Client, model string, maxParseRetries int) *Normalizer {
	if maxParseRetries <= 0 {
		maxParseRetries = 3
	}
	return &Normalizer{client: client, model: model, maxParseRetries: maxParseRetries}
}

// Model returns the model name used for both phases, for callers that
// need to record it alongside archived LLM output.
func (n *Normalizer) Model() string { return n.model }

// Phase1Extract produces the raw structured_metadata block: title,
// summary, and candidate tags drawn directly from the source text, with
// no normalization against any vocabulary.
func (n *Normalizer) Phase1Extract(ctx context.Context, sourceText string) (core.NormalizedMetadata, core.Usage, error) {
	prompt := buildExtractionPrompt(sourceText)
	return n.generate(ctx, prompt)
}

// Phase2Normalize consolidates a Phase 1 (or prior-version) metadata
// block's tags to canonical forms, given the semantic neighbors already
// normalized at the current vocabulary version and the vocabulary's
// top-N canonical forms by frequency. Every non-tag field (title,
// summary, entities, difficulty, style) is preserved unchanged from the
// input.
func (n *Normalizer) Phase2Normalize(ctx context.Context, raw core.NormalizedMetadata, neighbors []NeighborContext, vocabularyTopN []string) (core.NormalizedMetadata, core.Usage, error) {
	prompt := buildNormalizationPrompt(raw, neighbors, vocabularyTopN)
	normalized, usage, err := n.generate(ctx, prompt)
	if err != nil {
		return core.NormalizedMetadata{}, core.Usage{}, err
	}

	// Phase 2 must not drift from the input on fields it isn't
	// responsible for normalizing.
	normalized.Title = raw.Title
	normalized.Summary = raw.Summary
	normalized.Entities = raw.Entities
	normalized.Difficulty = raw.Difficulty
	normalized.Style = raw.Style

	return normalized, usage, nil
}

func (n *Normalizer) generate(ctx context.Context, prompt string) (core.NormalizedMetadata, core.Usage, error) {
	schema := metadataSchema()

	var lastErr error
	for attempt := 1; attempt <= n.maxParseRetries; attempt++ {
		result, err := n.client.GenerateStructured(ctx, prompt, llm.GenerationOptions{
			Model: n.model,
			Temperature: 0.2,
			MaxTokens: 2000,
			ResponseSchema: schema,
		})
		if err != nil {
			lastErr = err
			continue
		}

		metadata, err := parseMetadata(result.JSON)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt, err)
			continue
		}
		return metadata, result.Usage, nil
	}

	return core.NormalizedMetadata{}, core.Usage{}, fmt.Errorf("malformed LLM output after %d attempts: %w", n.maxParseRetries, lastErr)
}

// parseMetadata leniently parses a metadata JSON payload, stripping
// markdown code fences if the model wrapped its output despite the
// structured-output constraint.
func parseMetadata(raw string) (core.NormalizedMetadata, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var metadata core.NormalizedMetadata
	if err := json.Unmarshal([]byte(cleaned), &metadata); err != nil {
		return core.NormalizedMetadata{}, fmt.Errorf("parse metadata JSON: %w\nresponse: %s", err, raw)
	}
	if metadata.Title == "" {
		return core.NormalizedMetadata{}, fmt.Errorf("metadata missing required title field")
	}
	return metadata, nil
}

func buildExtractionPrompt(sourceText string) string {
	var sb strings.Builder
	sb.WriteString("You are extracting structured metadata from a piece of long-form content (a video transcript or an article).\n\n")
	sb.WriteString("Extract only what is actually present in the content below. Do not try to match any predefined taxonomy or vocabulary - describe the content in its own terms.\n\n")
	sb.WriteString("CONTENT:\n---\n")
	sb.WriteString(truncate(sourceText, 12000))
	sb.WriteString("\n---\n\n")
	sb.WriteString("Produce:\n")
	sb.WriteString("- title: a short descriptive title\n")
	sb.WriteString("- summary: 1-3 sentences capturing the core content\n")
	sb.WriteString("- subject_matter: the domain-level topics covered\n")
	sb.WriteString("- entities: named people, organizations, or products mentioned\n")
	sb.WriteString("- techniques: methods or practices discussed\n")
	sb.WriteString("- tools: software or products used or discussed\n")
	sb.WriteString("- difficulty: beginner, intermediate, or advanced\n")
	sb.WriteString("- style: tutorial, analysis, discussion, demo, interview, news, or review\n")
	return sb.String()
}

func buildNormalizationPrompt(raw core.NormalizedMetadata, neighbors []NeighborContext, vocabularyTopN []string) string {
	var sb strings.Builder
	sb.WriteString("You are consolidating tags to a controlled vocabulary. Given the raw extracted metadata below, rewrite subject_matter, techniques, and tools so that every tag is a canonical form.\n\n")

	sb.WriteString("RAW METADATA:\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n", raw.Title))
	sb.WriteString(fmt.Sprintf("Summary: %s\n", raw.Summary))
	sb.WriteString(fmt.Sprintf("subject_matter: %s\n", strings.Join(raw.SubjectMatter, ", ")))
	sb.WriteString(fmt.Sprintf("techniques: %s\n", strings.Join(raw.Techniques, ", ")))
	sb.WriteString(fmt.Sprintf("tools: %s\n\n", strings.Join(raw.Tools, ", ")))

	if len(neighbors) > 0 {
		sb.WriteString("SIMILAR CONTENT ALREADY TAGGED AT THE CURRENT VOCABULARY VERSION:\n")
		for _, neighbor := range neighbors {
			sb.WriteString(fmt.Sprintf("- %s: subject_matter=[%s] techniques=[%s] tools=[%s]\n",
				neighbor.Metadata.Title,
				strings.Join(neighbor.Metadata.SubjectMatter, ", "),
				strings.Join(neighbor.Metadata.Techniques, ", "),
				strings.Join(neighbor.Metadata.Tools, ", ")))
		}
		sb.WriteString("\n")
	}

	if len(vocabularyTopN) > 0 {
		sb.WriteString("MOST FREQUENTLY USED CANONICAL TAGS IN THE VOCABULARY:\n")
		sb.WriteString(strings.Join(vocabularyTopN, ", "))
		sb.WriteString("\n\n")
	}

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- For each raw tag, consolidate to a canonical form if one exists among the similar content's tags or the enumerated vocabulary.\n")
	sb.WriteString("- Invent a new canonical form only when no reasonable match exists in either source.\n")
	sb.WriteString("- Preserve title, summary, entities, difficulty, and style exactly as given.\n")
	sb.WriteString("- Return the full metadata object with normalized subject_matter, techniques, and tools.\n")

	return sb.String()
}

func truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "..."
}
