package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"lodestar/internal/core"
)

// PgVectorStore implements VectorStore on top of PostgreSQL with the
// pgvector extension, across two tables: content and content_chunks.
type PgVectorStore struct {
	db *sql.DB
}

// NewPgVectorStore wraps an already-open *sql.DB. The caller owns the
// connection lifecycle.
func NewPgVectorStore(db *sql.DB) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (p *PgVectorStore) UpsertContent(ctx context.Context, item *core.ContentItem) error {
	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO content (
			id, kind, external_id, url, source, archive_ref,
			metadata, subject_matter, projects, global_embedding,
			processing_version, vocabulary_version, discovered_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10::vector,
			$11, $12, $13
		)
		ON CONFLICT (id) DO UPDATE SET
			metadata            = EXCLUDED.metadata,
			subject_matter       = EXCLUDED.subject_matter,
			projects             = EXCLUDED.projects,
			global_embedding     = EXCLUDED.global_embedding,
			processing_version   = EXCLUDED.processing_version,
			vocabulary_version   = EXCLUDED.vocabulary_version
	`

	_, err = p.db.ExecContext(ctx, query,
		item.ID, string(item.Kind), item.ExternalID, item.Provenance.URL, item.Provenance.Source, item.ArchiveRef,
		metaJSON, pq.Array(item.Metadata.SubjectMatter), pq.Array(item.User.Projects), formatVector(item.GlobalEmbedding),
		item.ProcessingVersion, item.VocabularyVersion, item.DiscoveredAt,
	)
	if err != nil {
		return fmt.Errorf("upsert content: %w", err)
	}
	return nil
}

func (p *PgVectorStore) UpsertChunk(ctx context.Context, chunk *core.Chunk) error {
	query := `
		INSERT INTO content_chunks (
			id, content_id, ordinal, text, start_char, end_char,
			projects, embedding
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8::vector
		)
		ON CONFLICT (id) DO UPDATE SET
			text       = EXCLUDED.text,
			projects   = EXCLUDED.projects,
			embedding  = EXCLUDED.embedding
	`

	_, err := p.db.ExecContext(ctx, query,
		chunk.ID, chunk.ContentID, chunk.Ordinal, chunk.Text, chunk.StartChar, chunk.EndChar,
		pq.Array(chunk.Projects), formatVector(chunk.Embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

func (p *PgVectorStore) DeleteContent(ctx context.Context, contentID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM content_chunks WHERE content_id = $1`, contentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM content WHERE id = $1`, contentID); err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	return nil
}

func (p *PgVectorStore) SearchGlobal(ctx context.Context, query SearchQuery) ([]GlobalResult, error) {
	if query.Limit == 0 {
		query.Limit = 20
	}
	vectorStr := formatVector(query.Embedding)

	var conds []string
	args := []interface{}{vectorStr}
	argN := 2

	if len(query.ExcludeIDs) > 0 {
		conds = append(conds, fmt.Sprintf("id NOT IN (SELECT unnest($%d::text[]))", argN))
		args = append(args, pq.Array(query.ExcludeIDs))
		argN++
	}
	if len(query.Projects) > 0 {
		conds = append(conds, fmt.Sprintf("projects && $%d::text[]", argN))
		args = append(args, pq.Array(query.Projects))
		argN++
	}

	where := "global_embedding IS NOT NULL"
	if len(conds) > 0 {
		where += " AND " + strings.Join(conds, " AND ")
	}

	sqlQuery := fmt.Sprintf(`
		SELECT id, kind, external_id, url, source, archive_ref, metadata,
		       processing_version, vocabulary_version, discovered_at,
		       1 - (global_embedding <=> $1::vector) AS similarity,
		       global_embedding <=> $1::vector AS distance
		FROM content
		WHERE %s
		ORDER BY global_embedding <=> $1::vector
		LIMIT %d
	`, where, query.Limit)

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search global: %w", err)
	}
	defer rows.Close()

	var results []GlobalResult
	for rows.Next() {
		var r GlobalResult
		var item core.ContentItem
		var kind, metaJSON string
		if err := rows.Scan(
			&item.ID, &kind, &item.ExternalID, &item.Provenance.URL, &item.Provenance.Source, &item.ArchiveRef,
			&metaJSON, &item.ProcessingVersion, &item.VocabularyVersion, &item.DiscoveredAt,
			&r.Similarity, &r.Distance,
		); err != nil {
			return nil, fmt.Errorf("scan global result: %w", err)
		}
		item.Kind = core.ContentKind(kind)
		if err := json.Unmarshal([]byte(metaJSON), &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", item.ID, err)
		}
		r.ContentID = item.ID
		r.Item = &item
		results = append(results, r)
	}
	return results, rows.Err()
}

func (p *PgVectorStore) SearchChunks(ctx context.Context, query SearchQuery) ([]ChunkResult, error) {
	if query.Limit == 0 {
		query.Limit = 20
	}
	vectorStr := formatVector(query.Embedding)

	var conds []string
	args := []interface{}{vectorStr}
	argN := 2

	if len(query.ExcludeIDs) > 0 {
		conds = append(conds, fmt.Sprintf("content_id NOT IN (SELECT unnest($%d::text[]))", argN))
		args = append(args, pq.Array(query.ExcludeIDs))
		argN++
	}
	if len(query.Projects) > 0 {
		conds = append(conds, fmt.Sprintf("projects && $%d::text[]", argN))
		args = append(args, pq.Array(query.Projects))
		argN++
	}

	where := "embedding IS NOT NULL"
	if len(conds) > 0 {
		where += " AND " + strings.Join(conds, " AND ")
	}

	sqlQuery := fmt.Sprintf(`
		SELECT id, content_id, text,
		       1 - (embedding <=> $1::vector) AS similarity,
		       embedding <=> $1::vector AS distance
		FROM content_chunks
		WHERE %s
		ORDER BY embedding <=> $1::vector
		LIMIT %d
	`, where, query.Limit)

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []ChunkResult
	for rows.Next() {
		var r ChunkResult
		var text string
		if err := rows.Scan(&r.ChunkID, &r.ContentID, &text, &r.Similarity, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		r.Chunk = &core.Chunk{ID: r.ChunkID, ContentID: r.ContentID, Text: text}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (p *PgVectorStore) GetContent(ctx context.Context, contentID string) (*core.ContentItem, error) {
	query := `
		SELECT id, kind, external_id, url, source, archive_ref, metadata,
		       processing_version, vocabulary_version, discovered_at, global_embedding::text
		FROM content WHERE id = $1
	`
	var item core.ContentItem
	var kind, metaJSON string
	var vecText sql.NullString
	err := p.db.QueryRowContext(ctx, query, contentID).Scan(
		&item.ID, &kind, &item.ExternalID, &item.Provenance.URL, &item.Provenance.Source, &item.ArchiveRef,
		&metaJSON, &item.ProcessingVersion, &item.VocabularyVersion, &item.DiscoveredAt, &vecText,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	item.Kind = core.ContentKind(kind)
	if err := json.Unmarshal([]byte(metaJSON), &item.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if vecText.Valid {
		vec, err := parseVector(vecText.String)
		if err != nil {
			return nil, fmt.Errorf("parse global embedding: %w", err)
		}
		item.GlobalEmbedding = vec
	}
	return &item, nil
}

func (p *PgVectorStore) ContentExists(ctx context.Context, contentID string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM content WHERE id = $1)`, contentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("content exists: %w", err)
	}
	return exists, nil
}

func (p *PgVectorStore) AllGlobalVectors(ctx context.Context) ([]LabeledVector, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, global_embedding::text FROM content WHERE global_embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("all global vectors: %w", err)
	}
	defer rows.Close()

	var out []LabeledVector
	for rows.Next() {
		var id, vecText string
		if err := rows.Scan(&id, &vecText); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		vec, err := parseVector(vecText)
		if err != nil {
			return nil, fmt.Errorf("parse vector for %s: %w", id, err)
		}
		out = append(out, LabeledVector{ContentID: id, Vector: vec})
	}
	return out, rows.Err()
}

func (p *PgVectorStore) CreateIndexes(ctx context.Context) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_content_global_hnsw
			ON content USING hnsw (global_embedding vector_cosine_ops)
			WITH (m = 16, ef_construction = 64)`,
		`CREATE INDEX IF NOT EXISTS idx_content_chunks_hnsw
			ON content_chunks USING hnsw (embedding vector_cosine_ops)
			WITH (m = 16, ef_construction = 64)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// formatVector converts a []float32 to the pgvector text input format,
// e.g. [0.1, 0.2, 0.3] -> "[0.1,0.2,0.3]".
func formatVector(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%f", v)
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector parses pgvector's text output format back into a []float32.
func parseVector(text string) ([]float32, error) {
	text = strings.Trim(text, "[]")
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, ",")
	out := make([]float32, len(parts))
	for i, part := range parts {
		var v float32
		if _, err := fmt.Sscanf(part, "%f", &v); err != nil {
			return nil, fmt.Errorf("parse component %q: %w", part, err)
		}
		out[i] = v
	}
	return out, nil
}
