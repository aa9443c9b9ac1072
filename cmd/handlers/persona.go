package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"lodestar/internal/clustering"
	"lodestar/internal/core"
	"lodestar/internal/persona"
)

// bootstrapSnapshot is the on-disk record of one bootstrap run, read
// back by `persona label` so cluster IDs and member content stay
// consistent between the two human-in-the-loop steps.
type bootstrapSnapshot struct {
	Clusters           []core.PersonaCluster `json:"clusters"`
	VectorsByContentID map[string][]float32  `json:"vectors_by_content_id"`
}

// NewPersonaCmd builds the `persona` command group: bootstrap, label.
func NewPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Bootstrap and label personas from the indexed content corpus",
	}
	cmd.AddCommand(newPersonaBootstrapCmd())
	cmd.AddCommand(newPersonaLabelCmd())
	return cmd
}

func newPersonaBootstrapCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Cluster indexed content into candidate personas for human review",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := newComponents(ctx)
			if err != nil {
				return err
			}

			result, err := persona.Bootstrap(ctx, c.vectors, clustering.DefaultKMeansConfig())
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}

			vectors, err := c.vectors.AllGlobalVectors(ctx)
			if err != nil {
				return fmt.Errorf("load global vectors: %w", err)
			}
			vectorsByContentID := make(map[string][]float32, len(vectors))
			for _, v := range vectors {
				vectorsByContentID[v.ContentID] = v.Vector
			}

			snapshot := bootstrapSnapshot{Clusters: result.Clusters, VectorsByContentID: vectorsByContentID}
			data, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal bootstrap result: %w", err)
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(c.cfg.Personas.Path), "bootstrap.json")
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write bootstrap snapshot: %w", err)
			}

			fmt.Printf("silhouette score: %.3f (reference gate: 0.3)\n", result.Analysis.OverallScore)
			for _, cl := range result.Clusters {
				fmt.Printf("cluster %s: %d members\n", cl.ID, len(cl.ContentIDs))
			}
			fmt.Printf("wrote %s — label clusters and run `persona label --snapshot %s --labels <file>`\n", out, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path to write the bootstrap snapshot (default <personas dir>/bootstrap.json)")
	return cmd
}

func newPersonaLabelCmd() *cobra.Command {
	var snapshotPath, labelsPath string
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Materialize labeled personas from a reviewed bootstrap snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if snapshotPath == "" || labelsPath == "" {
				return fmt.Errorf("--snapshot and --labels are both required")
			}
			c, err := newComponents(cmd.Context())
			if err != nil {
				return err
			}

			snapshotData, err := os.ReadFile(snapshotPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			var snapshot bootstrapSnapshot
			if err := json.Unmarshal(snapshotData, &snapshot); err != nil {
				return fmt.Errorf("parse snapshot: %w", err)
			}

			labelsData, err := os.ReadFile(labelsPath)
			if err != nil {
				return fmt.Errorf("read labels: %w", err)
			}
			var labels []persona.Label
			if err := json.Unmarshal(labelsData, &labels); err != nil {
				return fmt.Errorf("parse labels: %w", err)
			}

			result := &persona.BootstrapResult{Clusters: snapshot.Clusters}
			if err := persona.MaterializeLabels(c.personas, result, labels, snapshot.VectorsByContentID); err != nil {
				return fmt.Errorf("materialize labels: %w", err)
			}
			fmt.Printf("materialized %d persona(s)\n", len(labels))
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "path to a bootstrap snapshot written by `persona bootstrap`")
	cmd.Flags().StringVar(&labelsPath, "labels", "", "path to a JSON array of {cluster_id, label, description}")
	return cmd
}
