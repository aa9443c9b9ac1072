package handlers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lodestar/internal/core"
	"lodestar/internal/rank"
)

// NewQueryCmd builds the `query` command: the administrative CLI's one
// user-facing read path over the search/recommendation/application
// retrieval modes.
func NewQueryCmd() *cobra.Command {
	var mode, projects, personas string
	var k int

	cmd := &cobra.Command{
		Use: "query <text>",
		Short: "Run a retrieval query in search, recommendation, or application mode",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			retrievalMode := core.RetrievalMode(mode)
			switch retrievalMode {
			case core.ModeSearch, core.ModeRecommendation, core.ModeApplication:
			default:
				return fmt.Errorf("unknown mode %q: must be search, recommendation, or application", mode)
			}

			c, err := newComponents(cmd.Context())
			if err != nil {
				return err
			}

			opts := rank.QueryOptions{K: k}
			if projects != "" {
				opts.Projects = strings.Split(projects, ",")
			}
			if personas != "" {
				opts.PersonaBlend = parsePersonaBlend(personas)
			}

			results, err := c.ranker().Query(cmd.Context(), args[0], retrievalMode, opts)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			for i, r := range results {
				fmt.Printf("%d. %s score=%.4f\n", i+1, r.DocID, r.Score)
				for _, chunk := range r.TopChunks {
					fmt.Printf(" - %.4f %s\n", chunk.Score, preview(chunk.Text))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(core.ModeSearch), "retrieval mode: search, recommendation, application")
	cmd.Flags().StringVar(&projects, "projects", "", "comma-separated project filter")
	cmd.Flags().StringVar(&personas, "personas", "", "comma-separated label:weight pairs, e.g. backend:0.7,infra:0.3")
	cmd.Flags().IntVar(&k, "k", 10, "number of results to return")
	return cmd
}

func parsePersonaBlend(raw string) rank.PersonaBlend {
	blend := rank.PersonaBlend{}
	for _, pair := range strings.Split(raw, ",") {
		label, weight, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		var w float64
		fmt.Sscanf(weight, "%f", &w)
		blend[strings.TrimSpace(label)] = w
	}
	return blend
}

func preview(text string) string {
	const maxLen = 100
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
