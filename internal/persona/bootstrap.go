package persona

import (
	"context"
	"fmt"

	"lodestar/internal/clustering"
	"lodestar/internal/core"
	"lodestar/internal/vectorstore"
)

// BootstrapResult is the candidate persona clusters awaiting a human
// label, plus the silhouette analysis used to judge clustering quality
// against the reference value (0.3). This is presented for manual
// review, never auto-accepted.
type BootstrapResult struct {
	Clusters []core.PersonaCluster
	Analysis *clustering.SilhouetteAnalysis
}

// Bootstrap runs the offline cold-start procedure: it pulls every
// content item's global embedding from the vector store, clusters them
// with K chosen by silhouette score, and returns the candidate
// clusters for human labeling. It never writes to the Persona Store
// itself — that happens once a human assigns labels via MaterializeLabels.
func Bootstrap(ctx context.Context, store vectorstore.VectorStore, cfg clustering.KMeansConfig) (*BootstrapResult, error) {
	vectors, err := store.AllGlobalVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load global vectors for bootstrap: %w", err)
	}

	clusterer := clustering.NewKMeansClusterer(cfg)
	clusters, analysis, err := clusterer.ClusterWithOptimalK(vectors)
	if err != nil {
		return nil, fmt.Errorf("cluster content embeddings: %w", err)
	}

	return &BootstrapResult{Clusters: clusters, Analysis: analysis}, nil
}

// Label pairs a candidate cluster's ID with the human-chosen label and
// description to materialize it as a persona.
type Label struct {
	ClusterID string `json:"cluster_id"`
	Label string `json:"label"`
	Description string `json:"description"`
}

// MaterializeLabels takes the human's cluster labels plus the original
// bootstrap result's clusters (for their member content ids) and
// builds each labeled persona in the given store via the ordinary
// Build path — the same one used by online construction, so
// bootstrapped and online-built personas are indistinguishable once
// materialized.
func MaterializeLabels(store *Store, result *BootstrapResult, labels []Label, vectorsByContentID map[string][]float32) error {
	clusterByID := map[string]core.PersonaCluster{}
	for _, c := range result.Clusters {
		clusterByID[c.ID] = c
	}

	for _, lbl := range labels {
		cluster, ok := clusterByID[lbl.ClusterID]
		if !ok {
			return fmt.Errorf("label references unknown cluster %q", lbl.ClusterID)
		}
		if len(cluster.ContentIDs) == 0 {
			return fmt.Errorf("cluster %q has no member content to build persona %q from", lbl.ClusterID, lbl.Label)
		}

		assignments := make([]Assignment, 0, len(cluster.ContentIDs))
		for _, contentID := range cluster.ContentIDs {
			vector, ok := vectorsByContentID[contentID]
			if !ok {
				return fmt.Errorf("missing global vector for content %q in cluster %q", contentID, lbl.ClusterID)
			}
			assignments = append(assignments, Assignment{ContentID: contentID, Vector: vector, Weight: 1.0})
		}

		if err := store.Build(lbl.Label, lbl.Description, assignments); err != nil {
			return fmt.Errorf("materialize persona %q: %w", lbl.Label, err)
		}
	}

	return nil
}
