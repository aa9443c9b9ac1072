// Package cmd wires the administrative CLI's root command and global
// flags. Subcommand implementations live in cmd/handlers.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lodestar/cmd/handlers"
	"lodestar/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "knowledgeengine",
	Short: "Personal content recommendation and knowledge engine",
	Long: `knowledgeengine ingests YouTube videos and web articles, normalizes
their subject matter against a controlled vocabulary, and indexes them for
retrieval in search, recommendation, and application modes.

This is the administrative surface over the ingestion pipeline, vocabulary,
and query operation; it is not an interactive client.`,
}

// Execute runs the root command; called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.lodestar.yaml or $HOME/.lodestar.yaml)")

	rootCmd.AddCommand(handlers.NewQueueCmd())
	rootCmd.AddCommand(handlers.NewVocabularyCmd())
	rootCmd.AddCommand(handlers.NewQueryCmd())
	rootCmd.AddCommand(handlers.NewPersonaCmd())
}

func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "error loading configuration:", err)
		os.Exit(1)
	}
}
