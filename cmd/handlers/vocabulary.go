package handlers

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lodestar/internal/vocabulary"
)

// NewVocabularyCmd builds the `vocabulary` command group: seed, consolidate,
// renormalize.
func NewVocabularyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocabulary",
		Short: "Administer the controlled vocabulary",
	}
	cmd.AddCommand(newVocabularySeedCmd())
	cmd.AddCommand(newVocabularyConsolidateCmd())
	cmd.AddCommand(newVocabularyRenormalizeCmd())
	return cmd
}

func newVocabularySeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed v1 of the vocabulary from the current archive corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newComponents(cmd.Context())
			if err != nil {
				return err
			}
			vocab, err := c.vocabulary.SeedFromCorpus(c.archive, c.cfg.Vocabulary.SeedTopK)
			if err != nil {
				return fmt.Errorf("seed vocabulary: %w", err)
			}
			fmt.Printf("seeded vocabulary %s with %d entries\n", vocab.Version, len(vocab.Entries))
			return nil
		},
	}
}

func newVocabularyConsolidateCmd() *cobra.Command {
	var proposalsPath string
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Apply a reviewed consolidation proposal, producing the next vocabulary version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if proposalsPath == "" {
				return fmt.Errorf("--proposals is required")
			}
			c, err := newComponents(cmd.Context())
			if err != nil {
				return err
			}
			current, err := c.vocabulary.LoadActive()
			if err != nil {
				return fmt.Errorf("load active vocabulary: %w", err)
			}

			data, err := os.ReadFile(proposalsPath)
			if err != nil {
				return fmt.Errorf("read proposals file: %w", err)
			}
			var proposals vocabulary.ConsolidationProposals
			if err := json.Unmarshal(data, &proposals); err != nil {
				return fmt.Errorf("parse proposals file: %w", err)
			}

			next, err := c.vocabulary.Consolidate(current, proposals)
			if err != nil {
				return fmt.Errorf("consolidate: %w", err)
			}
			fmt.Printf("consolidated vocabulary %s -> %s (%d entries)\n", current.Version, next.Version, len(next.Entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&proposalsPath, "proposals", "", "path to a JSON file with merges/renames/additions")
	return cmd
}

func newVocabularyRenormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renormalize <content_id>",
		Short: "Re-run Phase 2 tag normalization for one item against the active vocabulary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newComponents(cmd.Context())
			if err != nil {
				return err
			}
			version, err := c.pipeline().Renormalize(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("renormalize %s: %w", args[0], err)
			}
			fmt.Printf("%s normalized at vocabulary %s\n", args[0], version)
			return nil
		},
	}
}
