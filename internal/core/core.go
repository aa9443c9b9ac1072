// Package core defines the domain types shared across the ingestion and
// retrieval pipeline: content items, chunks, normalized metadata, the
// vocabulary, personas, and archive records.
package core

import "time"

// ContentKind identifies the kind of external source a ContentItem was
// ingested from.
type ContentKind string

const (
	KindYouTubeVideo ContentKind = "youtube_video"
	KindWebArticle   ContentKind = "web_article"
)

// Provenance records where and when a piece of content was obtained.
type Provenance struct {
	URL         string    `json:"url"`
	Source      string    `json:"source"` // channel name or site domain
	PublishedAt time.Time `json:"published_at,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Difficulty and Style are the closed enumerations of the normalized
// metadata block (see NormalizedMetadata).
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

type Style string

const (
	StyleTutorial   Style = "tutorial"
	StyleAnalysis   Style = "analysis"
	StyleDiscussion Style = "discussion"
	StyleDemo       Style = "demo"
	StyleInterview  Style = "interview"
	StyleNews       Style = "news"
	StyleReview     Style = "review"
)

// NormalizedMetadata is the structured metadata block attached to a
// content item by the Tag Normalizer, common to both the raw
// (structured_metadata) and vocabulary-aware (normalized_metadata_vN)
// outputs of the two-phase normalizer.
type NormalizedMetadata struct {
	Title         string     `json:"title"`
	Summary       string     `json:"summary"`
	SubjectMatter []string   `json:"subject_matter"`
	Entities      []string   `json:"entities"`
	Techniques    []string   `json:"techniques"`
	Tools         []string   `json:"tools"`
	Difficulty    Difficulty `json:"difficulty"`
	Style         Style      `json:"style"`
}

// UserContext carries the optional, user-supplied annotations on a
// content item: rating, importance, and project associations.
type UserContext struct {
	Rating     float64  `json:"rating,omitempty"`     // e.g. 1-5, 0 = unrated
	Importance string   `json:"importance,omitempty"` // e.g. "low", "normal", "high"
	Projects   []string `json:"projects,omitempty"`
}

// ContentItem is one logical unit of indexed material: one video, one
// article. Its ID is the stable string "kind:external_id".
type ContentItem struct {
	ID         string      `json:"id"`
	Kind       ContentKind `json:"kind"`
	ExternalID string      `json:"external_id"`

	Provenance Provenance `json:"provenance"`

	// ArchiveRef points at the archived raw text; the vector-store
	// payload never carries the raw body itself.
	ArchiveRef string `json:"archive_ref"`

	Metadata NormalizedMetadata `json:"metadata"`

	// GlobalEmbedding is the single 1024-dim document-level vector.
	GlobalEmbedding []float32 `json:"global_embedding,omitempty"`

	Usage UsageRecord `json:"usage"`

	// ProcessingVersion names the code version that produced the
	// current derived state of this item (see ProcessingRecord).
	ProcessingVersion string `json:"processing_version"`
	VocabularyVersion string `json:"vocabulary_version"`

	DiscoveredAt time.Time `json:"discovered_at"`

	User UserContext `json:"user,omitempty"`
}

// Chunk is a bounded slice of a content item's text, sized to fit the
// chunk embedder's context budget.
type Chunk struct {
	ID        string `json:"id"` // content_id + ":chunk_" + ordinal
	ContentID string `json:"content_id"`
	Ordinal   int    `json:"ordinal"`

	Text string `json:"text"`

	StartChar int `json:"start_char"`
	EndChar   int `json:"end_char"`

	// StartTime/EndTime are set only for transcript-derived chunks.
	StartTime *float64 `json:"start_time,omitempty"`
	EndTime   *float64 `json:"end_time,omitempty"`

	Embedding []float32 `json:"embedding,omitempty"`

	LocalSummary string   `json:"local_summary,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Projects     []string `json:"projects,omitempty"`
}

// TranscriptSegment is the flat unit the Fetcher returns for YouTube
// transcripts: a span of spoken text with a start offset and duration.
type TranscriptSegment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// VideoInfo carries metadata about a fetched YouTube video.
type VideoInfo struct {
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	UploadDate  string `json:"upload_date,omitempty"`
	Duration    int    `json:"duration_seconds"`
	Description string `json:"description,omitempty"`
}

// DocSectionKind enumerates the node kinds of a StructuredDocument.
type DocSectionKind string

const (
	SectionHeading   DocSectionKind = "heading"
	SectionParagraph DocSectionKind = "paragraph"
	SectionCode      DocSectionKind = "code"
	SectionListItem  DocSectionKind = "list_item"
)

// DocSection is one node of the abstract document tree the web Fetcher
// returns: a heading, paragraph, code block, or list item.
type DocSection struct {
	Kind  DocSectionKind `json:"kind"`
	Level int            `json:"level,omitempty"` // heading level, 1-6
	Text  string         `json:"text"`
}

// StructuredDocument is the abstract tree of sections the web Fetcher
// hands to the Chunker; LinearizedText is the flat form used by the
// global embedder.
type StructuredDocument struct {
	Sections       []DocSection `json:"sections"`
	LinearizedText string       `json:"linearized_text"`
}

// LLMOutput is one archived result of an LLM call: a structured
// extraction, a normalization pass, or any future labeled output.
type LLMOutput struct {
	OutputType        string    `json:"output_type"`
	Attempt           int       `json:"attempt"`
	Model             string    `json:"model"`
	PromptID          string    `json:"prompt_id"`
	VocabularyVersion string    `json:"vocabulary_version,omitempty"`
	Usage             Usage     `json:"usage"`
	WallMS            int64     `json:"wall_ms"`
	Value             any       `json:"value"`
	CreatedAt         time.Time `json:"created_at"`
}

// Usage records the token/cost accounting for a single LLM or embedding
// call.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// UsageRecord is the aggregate cost/usage record for a content item,
// accumulated across every LLM output archived for it.
type UsageRecord struct {
	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
}

// Add folds one Usage entry into the aggregate.
func (u *UsageRecord) Add(usage Usage) {
	u.TotalInputTokens += usage.InputTokens
	u.TotalOutputTokens += usage.OutputTokens
	u.TotalCostUSD += usage.CostUSD
}

// ProcessingStatus is the terminal or in-flight status recorded for one
// ingestion attempt.
type ProcessingStatus string

const (
	StatusOK          ProcessingStatus = "ok"
	StatusFailed      ProcessingStatus = "failed"
	StatusInterrupted ProcessingStatus = "interrupted"
)

// ProcessingRecord is one append-only entry describing an ingestion
// attempt for a content item.
type ProcessingRecord struct {
	At                time.Time        `json:"at"`
	CodeVersion       string           `json:"code_version"`
	VocabularyVersion string           `json:"vocab_version"`
	Status            ProcessingStatus `json:"status"`
	Error             string           `json:"error,omitempty"`
}

// VocabularyEntry is one canonical tag within a vocabulary version.
type VocabularyEntry struct {
	Canonical   string   `json:"canonical"`
	Description string   `json:"description,omitempty"`
	Frequency   int      `json:"frequency"`
	Aliases     []string `json:"aliases,omitempty"`
	FirstSeen   string   `json:"first_seen_version"`
	Tentative   bool     `json:"tentative"`
}

// Vocabulary is one immutable, versioned snapshot of the controlled
// vocabulary.
type Vocabulary struct {
	Version          string                      `json:"version"`
	Entries          map[string]*VocabularyEntry `json:"entries"` // canonical -> entry
	AliasToCanonical map[string]string           `json:"alias_to_canonical"`
	CreatedAt        time.Time                   `json:"created_at"`
}

// Persona is a named vector in the same space as content global
// embeddings, built from user-rated or labeled content.
type Persona struct {
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Vector      []float32 `json:"vector"`
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PersonaCluster is one candidate persona surfaced by offline bootstrap
// clustering, pending human labeling.
type PersonaCluster struct {
	ID              string    `json:"id"`
	ContentIDs      []string  `json:"content_ids"`
	Centroid        []float32 `json:"centroid"`
	SilhouetteScore float64   `json:"silhouette_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// RetrievalMode selects the weighting profile used by the Ranker.
type RetrievalMode string

const (
	ModeSearch         RetrievalMode = "search"
	ModeRecommendation RetrievalMode = "recommendation"
	ModeApplication    RetrievalMode = "application"
)

// EmbeddingDim is the fixed vector width shared by the global embedder,
// the chunk embedder, and every persona vector.
const EmbeddingDim = 1024
