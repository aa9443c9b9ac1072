// Package rank implements the Retrieval & Ranker: the query-time
// composition of chunk search, global similarity, persona alignment,
// and preference history into one mode-dependent score.
package rank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"lodestar/internal/config"
	"lodestar/internal/core"
	"lodestar/internal/embed"
	"lodestar/internal/persona"
	"lodestar/internal/vectorstore"
)

// defaultChunkLimit is the top-N of chunk candidates pulled from the
// chunk collection before grouping by document.
const defaultChunkLimit = 100

// ChunkPreview is one top-scoring chunk surfaced for a ranked
// document, used for preview text and (for transcript chunks)
// jump-to-timestamp.
type ChunkPreview struct {
	ChunkID string
	Text string
	Score float64
	StartTime *float64
	EndTime *float64
}

// Result is one ranked document.
type Result struct {
	DocID string
	Score float64
	TopChunks []ChunkPreview
}

// PersonaBlend maps persona labels to blend weights; callers are
// responsible for keeping weights meaningful (e.g. summing to 1) but
// the ranker normalizes internally against whatever is provided.
type PersonaBlend map[string]float64

// QueryOptions configures one query() call.
type QueryOptions struct {
	Projects []string
	PersonaBlend PersonaBlend
	K int
	ChunkLimit int
}

// PrefScorer computes pref_score(doc) from stored user feedback.
// DefaultPrefScorer is the implementation used unless a caller supplies
// another.
type PrefScorer func(item *core.ContentItem) float64

// Ranker composes the Vector Store, the Persona Store, and a pref
// scoring function into the query() operation.
type Ranker struct {
	store vectorstore.VectorStore
	embedder *embed.Embedder
	personas *persona.Store
	weights map[core.RetrievalMode]config.RankWeights
	prefScorer PrefScorer
}

func New(store vectorstore.VectorStore, embedder *embed.Embedder, personas *persona.Store, weights map[string]config.RankWeights) *Ranker {
	byMode := make(map[core.RetrievalMode]config.RankWeights, len(weights))
	for mode, w := range weights {
		byMode[core.RetrievalMode(mode)] = w
	}
	return &Ranker{
		store: store,
		embedder: embedder,
		personas: personas,
		weights: byMode,
		prefScorer: DefaultPrefScorer,
	}
}

// WithPrefScorer overrides the preference-scoring function.
func (r *Ranker) WithPrefScorer(scorer PrefScorer) *Ranker {
	r.prefScorer = scorer
	return r
}

// Query runs the algorithm: embed the query text at both
// granularities, retrieve candidate chunks, compute per-document chunk/
// global/persona/pref scores, combine under the mode's weights, and
// return the top K documents sorted by combined score (ties broken by
// doc_id ascending).
func (r *Ranker) Query(ctx context.Context, text string, mode core.RetrievalMode, opts QueryOptions) ([]Result, error) {
	weights, ok := r.weights[mode]
	if !ok {
		return nil, fmt.Errorf("no ranker weights configured for mode %q", mode)
	}

	k := opts.K
	if k <= 0 {
		k = 10
	}
	chunkLimit := opts.ChunkLimit
	if chunkLimit <= 0 {
		chunkLimit = defaultChunkLimit
	}

	_, qChunk, err := r.embedder.Chunk(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query (chunk): %w", err)
	}
	_, qGlobal, err := r.embedder.Global(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query (global): %w", err)
	}

	chunkHits, err := r.store.SearchChunks(ctx, vectorstore.SearchQuery{
		Embedding: qChunk,
		Limit: chunkLimit,
		Projects: opts.Projects,
	})
	if err != nil {
		// a failing chunk search degrades to an empty candidate set
		// rather than failing the whole query (user-visible behavior)
		chunkHits = nil
	}

	byDoc := groupChunkHits(chunkHits)

	contents := map[string]*core.ContentItem{}
	for docID := range byDoc {
		item, err := r.store.GetContent(ctx, docID)
		if err != nil || item == nil {
			// a vanished content record degrades this candidate to zero
			// global/persona/pref contribution rather than failing
			continue
		}
		contents[docID] = item
	}

	blendVector, blendWeight := r.blendPersonaVector(opts.PersonaBlend)

	return composeResults(byDoc, contents, qGlobal, blendVector, blendWeight, weights, r.prefScorer, k), nil
}

type docCandidate struct {
	chunkScore float64
	topChunks []ChunkPreview
}

func groupChunkHits(hits []vectorstore.ChunkResult) map[string]*docCandidate {
	byDoc := map[string]*docCandidate{}
	for _, hit := range hits {
		c, ok := byDoc[hit.ContentID]
		if !ok {
			c = &docCandidate{chunkScore: -2}
			byDoc[hit.ContentID] = c
		}
		if hit.Similarity > c.chunkScore {
			c.chunkScore = hit.Similarity
		}
		preview := ChunkPreview{Score: hit.Similarity}
		if hit.Chunk != nil {
			preview.ChunkID = hit.Chunk.ID
			preview.Text = hit.Chunk.Text
			preview.StartTime = hit.Chunk.StartTime
			preview.EndTime = hit.Chunk.EndTime
		} else {
			preview.ChunkID = hit.ChunkID
		}
		c.topChunks = append(c.topChunks, preview)
	}
	return byDoc
}

// composeResults combines each candidate document's chunk/global/
// persona/pref scores under the mode's weights and returns the top k
// sorted by combined score, ties broken by doc_id ascending. It is
// pure with respect to the Vector Store and embedder so it can be
// exercised directly in tests.
func composeResults(byDoc map[string]*docCandidate, contents map[string]*core.ContentItem, qGlobal, blendVector []float32, blendWeight float64, weights config.RankWeights, prefScorer PrefScorer, k int) []Result {
	results := make([]Result, 0, len(byDoc))
	for docID, c := range byDoc {
		item, ok := contents[docID]
		if !ok {
			continue
		}

		globalScore := cosineSimilarity(qGlobal, item.GlobalEmbedding)

		personaScore := 0.0
		if blendWeight > 0 {
			personaScore = cosineSimilarity(blendVector, item.GlobalEmbedding)
		}

		prefScore := prefScorer(item)

		combined := weights.Chunk*c.chunkScore +
			weights.Global*globalScore +
			weights.Persona*personaScore +
			weights.Pref*prefScore

		sort.Slice(c.topChunks, func(i, j int) bool { return c.topChunks[i].Score > c.topChunks[j].Score })
		if len(c.topChunks) > 3 {
			c.topChunks = c.topChunks[:3]
		}

		results = append(results, Result{DocID: docID, Score: combined, TopChunks: c.topChunks})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// blendPersonaVector combines the requested personas into one vector,
// weighted by the blend and renormalized to a unit-ish scale so cosine
// similarity against it stays meaningful. Returns a zero weight if no
// persona was found.
func (r *Ranker) blendPersonaVector(blend PersonaBlend) ([]float32, float64) {
	if len(blend) == 0 || r.personas == nil {
		return nil, 0
	}

	var dim int
	sum := map[int]float64{}
	totalWeight := 0.0
	for label, weight := range blend {
		p, ok := r.personas.Get(label)
		if !ok || weight <= 0 {
			continue
		}
		if dim == 0 {
			dim = len(p.Vector)
		}
		for i, v := range p.Vector {
			sum[i] += float64(v) * weight
		}
		totalWeight += weight
	}
	if totalWeight == 0 || dim == 0 {
		return nil, 0
	}

	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		out[i] = float32(sum[i] / totalWeight)
	}
	return out, totalWeight
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// DefaultPrefScorer normalizes a content item's stored rating
// (0-5, 0 = unrated) to [-1,1], applies a recency half-life of 30
// days since discovery, and adds a flat bump for items marked "high"
// importance. Inputs beyond rating/recency/importance (e.g. prior
// application count) aren't modeled yet.
func DefaultPrefScorer(item *core.ContentItem) float64 {
	if item == nil {
		return 0
	}

	ratingScore := 0.0
	if item.User.Rating > 0 {
		ratingScore = (item.User.Rating - 2.5) / 2.5
	}

	age := time.Since(item.DiscoveredAt)
	recencyScore := math.Exp(-age.Hours() / (30 * 24))

	importanceBump := 0.0
	if item.User.Importance == "high" {
		importanceBump = 0.2
	}

	score := 0.6*ratingScore + 0.3*recencyScore + importanceBump
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}
