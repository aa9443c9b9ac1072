package clustering

import (
	"testing"

	"lodestar/internal/vectorstore"
)

func labeled(id string, v ...float32) vectorstore.LabeledVector {
	return vectorstore.LabeledVector{ContentID: id, Vector: v}
}

func TestClusterWithOptimalKSeparatesObviousGroups(t *testing.T) {
	vectors := []vectorstore.LabeledVector{
		labeled("a1", 1, 0, 0),
		labeled("a2", 0.9, 0.1, 0),
		labeled("b1", 0, 1, 0),
		labeled("b2", 0.1, 0.9, 0),
	}

	cfg := DefaultKMeansConfig()
	cfg.MinK = 2
	cfg.MaxK = 2
	cfg.UseOptimalK = false

	clusterer := NewKMeansClusterer(cfg)
	clusters, analysis, err := clusterer.ClusterWithOptimalK(vectors)
	if err != nil {
		t.Fatalf("ClusterWithOptimalK failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}

	total := 0
	for _, c := range clusters {
		total += len(c.ContentIDs)
	}
	if total != 4 {
		t.Errorf("expected all 4 content ids assigned, got %d", total)
	}
	if analysis.NumPoints != 4 {
		t.Errorf("expected analysis over 4 points, got %d", analysis.NumPoints)
	}

	clusterOf := make(map[string]string)
	for _, c := range clusters {
		for _, id := range c.ContentIDs {
			clusterOf[id] = c.ID
		}
	}
	if clusterOf["a1"] != clusterOf["a2"] || clusterOf["b1"] != clusterOf["b2"] || clusterOf["a1"] == clusterOf["b1"] {
		t.Errorf("expected {a1,a2} and {b1,b2} in separate clusters, got %v", clusterOf)
	}
}

func TestClusterWithOptimalKRejectsEmptyInput(t *testing.T) {
	clusterer := NewKMeansClusterer(DefaultKMeansConfig())
	if _, _, err := clusterer.ClusterWithOptimalK(nil); err == nil {
		t.Error("expected error clustering zero content embeddings")
	}
}

func TestClusterWithOptimalKSelectsKWithinBounds(t *testing.T) {
	vectors := []vectorstore.LabeledVector{
		labeled("a1", 1, 0),
		labeled("a2", 0.95, 0.05),
		labeled("b1", 0, 1),
		labeled("b2", 0.05, 0.95),
		labeled("c1", -1, 0),
		labeled("c2", -0.95, 0.05),
	}

	cfg := DefaultKMeansConfig()
	cfg.MinK = 2
	cfg.MaxK = 4

	clusterer := NewKMeansClusterer(cfg)
	clusters, _, err := clusterer.ClusterWithOptimalK(vectors)
	if err != nil {
		t.Fatalf("ClusterWithOptimalK failed: %v", err)
	}
	if len(clusters) < cfg.MinK || len(clusters) > cfg.MaxK {
		t.Errorf("expected cluster count within [%d,%d], got %d", cfg.MinK, cfg.MaxK, len(clusters))
	}
}
