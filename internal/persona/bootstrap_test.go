package persona

import (
	"context"
	"path/filepath"
	"testing"

	"lodestar/internal/clustering"
	"lodestar/internal/core"
	"lodestar/internal/vectorstore"
)

// fakeVectorStore implements vectorstore.VectorStore with AllGlobalVectors
// backed by an in-memory slice; every other method is unused by the
// bootstrap tool and panics if called.
type fakeVectorStore struct {
	vectors []vectorstore.LabeledVector
}

func (f *fakeVectorStore) UpsertContent(ctx context.Context, item *core.ContentItem) error {
	panic("not used by bootstrap")
}
func (f *fakeVectorStore) UpsertChunk(ctx context.Context, chunk *core.Chunk) error {
	panic("not used by bootstrap")
}
func (f *fakeVectorStore) DeleteContent(ctx context.Context, contentID string) error {
	panic("not used by bootstrap")
}
func (f *fakeVectorStore) SearchGlobal(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.GlobalResult, error) {
	panic("not used by bootstrap")
}
func (f *fakeVectorStore) SearchChunks(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.ChunkResult, error) {
	panic("not used by bootstrap")
}
func (f *fakeVectorStore) GetContent(ctx context.Context, contentID string) (*core.ContentItem, error) {
	panic("not used by bootstrap")
}
func (f *fakeVectorStore) ContentExists(ctx context.Context, contentID string) (bool, error) {
	panic("not used by bootstrap")
}
func (f *fakeVectorStore) AllGlobalVectors(ctx context.Context) ([]vectorstore.LabeledVector, error) {
	return f.vectors, nil
}
func (f *fakeVectorStore) CreateIndexes(ctx context.Context) error { return nil }

func TestBootstrapClustersAndMaterializes(t *testing.T) {
	store := &fakeVectorStore{vectors: []vectorstore.LabeledVector{
		{ContentID: "go-1", Vector: []float32{1, 0, 0}},
		{ContentID: "go-2", Vector: []float32{0.9, 0.1, 0}},
		{ContentID: "rust-1", Vector: []float32{0, 1, 0}},
		{ContentID: "rust-2", Vector: []float32{0.1, 0.9, 0}},
	}}

	cfg := clustering.DefaultKMeansConfig()
	cfg.MinK = 2
	cfg.MaxK = 2
	cfg.UseOptimalK = false

	result, err := Bootstrap(context.Background(), store, cfg)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if len(result.Clusters) != 2 {
		t.Fatalf("expected 2 candidate clusters, got %d", len(result.Clusters))
	}

	vectorsByID := map[string][]float32{}
	for _, v := range store.vectors {
		vectorsByID[v.ContentID] = v.Vector
	}

	labels := make([]Label, len(result.Clusters))
	for i, c := range result.Clusters {
		labels[i] = Label{ClusterID: c.ID, Label: c.ID + "-persona", Description: "bootstrapped"}
	}

	personaStore, err := New(filepath.Join(t.TempDir(), "personas.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := MaterializeLabels(personaStore, result, labels, vectorsByID); err != nil {
		t.Fatalf("MaterializeLabels failed: %v", err)
	}

	if len(personaStore.All()) != 2 {
		t.Errorf("expected 2 materialized personas, got %d", len(personaStore.All()))
	}
}

func TestMaterializeLabelsRejectsUnknownCluster(t *testing.T) {
	result := &BootstrapResult{Clusters: []core.PersonaCluster{{ID: "cluster-0", ContentIDs: []string{"a"}}}}
	personaStore, err := New(filepath.Join(t.TempDir(), "personas.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	err = MaterializeLabels(personaStore, result, []Label{{ClusterID: "missing", Label: "x"}}, map[string][]float32{"a": {1, 2}})
	if err == nil {
		t.Error("expected error referencing an unknown cluster id")
	}
}
