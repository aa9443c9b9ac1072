package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lodestar/internal/archive"
	"lodestar/internal/chunk"
	"lodestar/internal/config"
	"lodestar/internal/core"
	"lodestar/internal/embed"
	"lodestar/internal/fetch"
	"lodestar/internal/normalize"
	"lodestar/internal/vectorstore"
	"lodestar/internal/vocabulary"
)

// CodeVersion identifies the running pipeline implementation; recorded
// on every processing record and compared during idempotency checks.
// Bump it whenever pipeline semantics change in a way that should
// force re-processing.
const CodeVersion = "v1"

// Pipeline wires every component the state machine in drives:
// fetch → archive → chunk → embed → normalize (phase 1 + phase 2) →
// upsert.
type Pipeline struct {
	Archive *archive.Store
	Vectors vectorstore.VectorStore
	Fetcher *fetch.Client
	Normalizer *normalize.Normalizer
	Embedder *embed.Embedder
	Vocabulary *vocabulary.Manager
	Chunker config.Chunker
	NeighborsK int
}

// Process runs one work item through the full ingestion state machine,
// returning a classified error the Controller can route to retry or
// terminal failure. A nil error means the item is fully processed and
// upserted.
func (p *Pipeline) Process(ctx context.Context, item WorkItem) error {
	kind, externalID, err := classifyURL(item.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", errTerminal, err)
	}
	contentID := string(kind) + ":" + externalID

	vocab, err := p.Vocabulary.LoadActive()
	if err != nil {
		return fmt.Errorf("%w: vocabulary unavailable: %v", errTerminal, err)
	}

	done, err := p.alreadyProcessed(ctx, kind, externalID, vocab.Version)
	if err != nil {
		return fmt.Errorf("check idempotency: %w", err)
	}
	if done {
		return nil
	}

	fetched, err := p.Fetcher.Fetch(ctx, item.URL)
	if err != nil {
		return classifyFetchErr(err)
	}

	rawText, rawMetadata := linearize(fetched)
	provenance := core.Provenance{
		URL: item.URL,
		Source: sourceOf(kind, fetched),
		FetchedAt: time.Now().UTC(),
	}
	if _, err := p.Archive.WriteSource(kind, externalID, provenance, []byte(rawText), true); err != nil {
		return fmt.Errorf("write archive source: %w", err)
	}

	chunks := p.chunkContent(kind, fetched)
	for i := range chunks {
		chunks[i].ID = fmt.Sprintf("%s:chunk_%d", contentID, chunks[i].Ordinal)
		chunks[i].ContentID = contentID
	}

	var chunkUsages []core.Usage
	for i, c := range chunks {
		usage, vector, err := p.Embedder.Chunk(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("%w: embed chunk %d: %v", errRetryable, i, err)
		}
		chunks[i].Embedding = vector
		chunkUsages = append(chunkUsages, usage) // accounted at the content-item level via UsageRecord
	}

	globalUsage, globalEmbedding, err := p.Embedder.Global(ctx, rawText)
	if err != nil {
		return fmt.Errorf("%w: embed global: %v", errRetryable, err)
	}

	raw, phase1Usage, err := p.Normalizer.Phase1Extract(ctx, rawText)
	if err != nil {
		return fmt.Errorf("%w: %v", errTerminal, err)
	}
	if _, _, err := p.Archive.AppendLLMOutput(kind, externalID, "structured_metadata", core.LLMOutput{
		Model: p.Normalizer.Model(),
		Usage: phase1Usage,
		Value: raw,
	}); err != nil {
		return fmt.Errorf("archive structured_metadata: %w", err)
	}

	neighbors, err := p.findNeighbors(ctx, globalEmbedding, contentID, vocab.Version)
	if err != nil {
		neighbors = nil // a failing neighbor lookup degrades to none, not a failure
	}

	normalized, phase2Usage, err := p.Normalizer.Phase2Normalize(ctx, raw, neighbors, vocabulary.TopN(vocab, p.normalizerVocabTopN()))
	if err != nil {
		return fmt.Errorf("%w: %v", errTerminal, err)
	}
	outputType := "normalized_metadata_" + vocab.Version
	if _, _, err := p.Archive.AppendLLMOutput(kind, externalID, outputType, core.LLMOutput{
		Model: p.Normalizer.Model(),
		VocabularyVersion: vocab.Version,
		Usage: phase2Usage,
		Value: normalized,
	}); err != nil {
		return fmt.Errorf("archive %s: %w", outputType, err)
	}

	item2 := &core.ContentItem{
		ID: contentID,
		Kind: kind,
		ExternalID: externalID,
		Provenance: provenance,
		ArchiveRef: contentID,
		Metadata: normalized,
		GlobalEmbedding: globalEmbedding,
		ProcessingVersion: CodeVersion,
		VocabularyVersion: vocab.Version,
		DiscoveredAt: time.Now().UTC(),
		User: core.UserContext{
			Rating: item.Rating,
			Importance: item.Importance,
			Projects: item.Projects,
		},
	}
	item2.Usage.Add(phase1Usage)
	item2.Usage.Add(phase2Usage)
	item2.Usage.Add(globalUsage)
	for _, u := range chunkUsages {
		item2.Usage.Add(u)
	}
	_ = rawMetadata // not persisted: rawText holds only the transcript or page text, and neither the archive nor the vector payload has a raw_metadata field (the channel is kept as Provenance.Source)

	if err := p.Vectors.UpsertContent(ctx, item2); err != nil {
		return fmt.Errorf("%w: upsert content: %v", errRetryable, err)
	}
	for i := range chunks {
		if err := p.Vectors.UpsertChunk(ctx, &chunks[i]); err != nil {
			return fmt.Errorf("%w: upsert chunk: %v", errRetryable, err)
		}
	}

	if err := p.Archive.AppendProcessingRecord(kind, externalID, core.ProcessingRecord{
		At: time.Now().UTC(),
		CodeVersion: CodeVersion,
		VocabularyVersion: vocab.Version,
		Status: core.StatusOK,
	}); err != nil {
		return fmt.Errorf("record processing result: %w", err)
	}

	return nil
}

// Renormalize re-runs Phase 2 alone against the currently active
// vocabulary for a content item processed at an older version: it
// reads the archived structured_metadata rather than re-running
// Phase 1, finds semantic neighbors already normalized at the active
// version, and archives normalized_metadata_<version> alongside every
// prior version without disturbing them. Returns the version the item
// now carries (unchanged if it was already current).
func (p *Pipeline) Renormalize(ctx context.Context, contentID string) (string, error) {
	item, err := p.Vectors.GetContent(ctx, contentID)
	if err != nil {
		return "", fmt.Errorf("load content %s: %w", contentID, err)
	}
	if item == nil {
		return "", fmt.Errorf("content %s not found", contentID)
	}

	vocab, err := p.Vocabulary.LoadActive()
	if err != nil {
		return "", fmt.Errorf("load active vocabulary: %w", err)
	}
	if item.VocabularyVersion == vocab.Version {
		return vocab.Version, nil
	}

	structured, ok, err := p.Archive.ReadLatestLLMOutput(item.Kind, item.ExternalID, "structured_metadata")
	if err != nil {
		return "", fmt.Errorf("read structured_metadata: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("no archived structured_metadata for %s; cannot re-normalize without a phase 1 extraction", contentID)
	}
	raw, err := decodeNormalizedMetadata(structured.Value)
	if err != nil {
		return "", fmt.Errorf("decode structured_metadata: %w", err)
	}
	canonicalizeAgainstVocabulary(&raw, vocab)

	var neighbors []normalize.NeighborContext
	if len(item.GlobalEmbedding) > 0 {
		neighbors, err = p.findNeighbors(ctx, item.GlobalEmbedding, contentID, vocab.Version)
		if err != nil {
			neighbors = nil // a failing neighbor lookup degrades to none, not a failure
		}
	}

	normalized, usage, err := p.Normalizer.Phase2Normalize(ctx, raw, neighbors, vocabulary.TopN(vocab, p.normalizerVocabTopN()))
	if err != nil {
		return "", fmt.Errorf("phase 2 normalize: %w", err)
	}

	outputType := "normalized_metadata_" + vocab.Version
	if _, _, err := p.Archive.AppendLLMOutput(item.Kind, item.ExternalID, outputType, core.LLMOutput{
		Model: p.Normalizer.Model(),
		VocabularyVersion: vocab.Version,
		Usage: usage,
		Value: normalized,
	}); err != nil {
		return "", fmt.Errorf("archive %s: %w", outputType, err)
	}

	item.Metadata = normalized
	item.VocabularyVersion = vocab.Version
	if err := p.Vectors.UpsertContent(ctx, item); err != nil {
		return "", fmt.Errorf("upsert re-normalized content: %w", err)
	}

	if err := p.Archive.AppendProcessingRecord(item.Kind, item.ExternalID, core.ProcessingRecord{
		At: time.Now().UTC(),
		CodeVersion: CodeVersion,
		VocabularyVersion: vocab.Version,
		Status: core.StatusOK,
	}); err != nil {
		return "", fmt.Errorf("record processing result: %w", err)
	}

	return vocab.Version, nil
}

// decodeNormalizedMetadata round-trips an archived LLM output's Value
// (decoded from JSON into `any` by the archive reader) back into a
// typed NormalizedMetadata.
func decodeNormalizedMetadata(value any) (core.NormalizedMetadata, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return core.NormalizedMetadata{}, err
	}
	var metadata core.NormalizedMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return core.NormalizedMetadata{}, err
	}
	return metadata, nil
}

// canonicalizeAgainstVocabulary resolves every tag already present to
// its canonical form deterministically (case-insensitive match or
// alias lookup) before Phase 2 sees it, so known aliases do not
// depend on the LLM to honor them from prompt context alone.
func canonicalizeAgainstVocabulary(raw *core.NormalizedMetadata, vocab *core.Vocabulary) {
	raw.SubjectMatter = canonicalizeTags(raw.SubjectMatter, vocab)
	raw.Techniques = canonicalizeTags(raw.Techniques, vocab)
	raw.Tools = canonicalizeTags(raw.Tools, vocab)
}

func canonicalizeTags(tags []string, vocab *core.Vocabulary) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		if canonical, ok := vocabulary.CanonicalOf(vocab, tag); ok {
			out[i] = canonical
		} else {
			out[i] = tag
		}
	}
	return out
}

// alreadyProcessed checks the Vector Store and the Archive for an
// existing successful processing record at the current code and
// vocabulary version.
func (p *Pipeline) alreadyProcessed(ctx context.Context, kind core.ContentKind, externalID, vocabVersion string) (bool, error) {
	contentID := string(kind) + ":" + externalID
	exists, err := p.Vectors.ContentExists(ctx, contentID)
	if err != nil {
		return false, fmt.Errorf("check vector store: %w", err)
	}
	if !exists {
		return false, nil
	}

	history, err := p.Archive.ProcessingHistory(kind, externalID)
	if err != nil {
		return false, fmt.Errorf("check archive processing history: %w", err)
	}
	for _, record := range history {
		if record.Status == core.StatusOK && record.CodeVersion == CodeVersion && record.VocabularyVersion == vocabVersion {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pipeline) findNeighbors(ctx context.Context, globalEmbedding []float32, excludeID, vocabVersion string) ([]normalize.NeighborContext, error) {
	k := p.NeighborsK
	if k <= 0 {
		k = 5
	}
	hits, err := p.Vectors.SearchGlobal(ctx, vectorstore.SearchQuery{
		Embedding: globalEmbedding,
		Limit: k,
		ExcludeIDs: []string{excludeID},
	})
	if err != nil {
		return nil, err
	}

	neighbors := make([]normalize.NeighborContext, 0, len(hits))
	for _, hit := range hits {
		if hit.Item == nil || hit.Item.VocabularyVersion != vocabVersion {
			continue // only neighbors already normalized at the current version are useful context
		}
		neighbors = append(neighbors, normalize.NeighborContext{ContentID: hit.ContentID, Metadata: hit.Item.Metadata})
	}
	return neighbors, nil
}

func (p *Pipeline) normalizerVocabTopN() int {
	return 30
}

func (p *Pipeline) chunkContent(kind core.ContentKind, fetched fetch.FetchedContent) []core.Chunk {
	switch kind {
	case core.KindYouTubeVideo:
		return chunk.Transcript(fetched.Segments, p.Chunker.Transcript)
	default:
		return chunk.Web(fetched.Document, p.Chunker.Web)
	}
}

func linearize(fetched fetch.FetchedContent) (rawText string, rawMetadata map[string]any) {
	if fetched.Kind == core.KindYouTubeVideo {
		var sb strings.Builder
		for _, seg := range fetched.Segments {
			sb.WriteString(seg.Text)
			sb.WriteString(" ")
		}
		return sb.String(), map[string]any{
			"title": fetched.Video.Title,
			"channel": fetched.Video.Channel,
		}
	}
	return fetched.Document.LinearizedText, nil
}

func sourceOf(kind core.ContentKind, fetched fetch.FetchedContent) string {
	if kind == core.KindYouTubeVideo {
		return fetched.Video.Channel
	}
	return ""
}

// classifyURL determines the content kind and external id a URL maps
// to. YouTube URLs resolve to their video id; everything else is
// treated as a web article keyed by its URL.
func classifyURL(rawURL string) (core.ContentKind, string, error) {
	if fetch.DetectYouTubeURL(rawURL) {
		id, err := fetch.ExtractYouTubeVideoID(rawURL)
		if err != nil {
			return "", "", err
		}
		return core.KindYouTubeVideo, id, nil
	}
	return core.KindWebArticle, rawURL, nil
}

var (
	errRetryable = errors.New("retryable")
	errTerminal = errors.New("terminal")
)

// classifyFetchErr maps the Fetcher's error taxonomy onto the
// queue's retry/terminal routing.
func classifyFetchErr(err error) error {
	if fetch.IsRetryable(err) {
		return fmt.Errorf("%w: %v", errRetryable, err)
	}
	return fmt.Errorf("%w: %v", errTerminal, err)
}
