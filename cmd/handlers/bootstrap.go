package handlers

import (
	"context"
	"fmt"

	"lodestar/internal/archive"
	"lodestar/internal/config"
	"lodestar/internal/embed"
	"lodestar/internal/fetch"
	"lodestar/internal/llm"
	"lodestar/internal/normalize"
	"lodestar/internal/queue"
	"lodestar/internal/rank"
	"lodestar/internal/vectorstore"
	"lodestar/internal/vocabulary"

	"lodestar/internal/persona"
)

// components holds every long-lived dependency the CLI's handlers share,
// built once per invocation from the loaded configuration.
type components struct {
	cfg        *config.Config
	archive    *archive.Store
	vocabulary *vocabulary.Manager
	personas   *persona.Store
	vectors    *vectorstore.PgVectorStore
	llmClient  *llm.Client
	embedder   *embed.Embedder
	normalizer *normalize.Normalizer
	fetcher    *fetch.Client
}

func newComponents(ctx context.Context) (*components, error) {
	cfg := config.Get()

	archiveStore, err := archive.New(cfg.Archive.Root)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}

	vocabManager, err := vocabulary.New(cfg.Vocabulary.Root)
	if err != nil {
		return nil, fmt.Errorf("init vocabulary: %w", err)
	}

	personaStore, err := persona.New(cfg.Personas.Path)
	if err != nil {
		return nil, fmt.Errorf("init persona store: %w", err)
	}

	db, err := vectorstore.Connect(ctx, cfg.VectorDB.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("connect vector store: %w", err)
	}
	vectors := vectorstore.NewPgVectorStore(db)

	llmClient, err := llm.NewClient(cfg.Gemini.Model)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	fetcher, err := fetch.NewClient(cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	return &components{
		cfg:        cfg,
		archive:    archiveStore,
		vocabulary: vocabManager,
		personas:   personaStore,
		vectors:    vectors,
		llmClient:  llmClient,
		embedder:   embed.New(llmClient, cfg.Embedder),
		normalizer: normalize.New(llmClient, cfg.Gemini.Model, cfg.Normalizer.MaxParseRetries),
		fetcher:    fetcher,
	}, nil
}

func (c *components) pipeline() *queue.Pipeline {
	return &queue.Pipeline{
		Archive:    c.archive,
		Vectors:    c.vectors,
		Fetcher:    c.fetcher,
		Normalizer: c.normalizer,
		Embedder:   c.embedder,
		Vocabulary: c.vocabulary,
		Chunker:    c.cfg.Chunker,
		NeighborsK: c.cfg.Normalizer.NeighborsK,
	}
}

func (c *components) ranker() *rank.Ranker {
	return rank.New(c.vectors, c.embedder, c.personas, c.cfg.Ranker.Weights)
}
