package main

import (
	"github.com/spf13/cobra"

	"github.com/stitch-works/stitch/internal/api"
	"github.com/stitch-works/stitch/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Chunk-offset reconciliation and connection detection for markdown documents",
	Long: `Stitch keeps semantic chunks anchored to their canonical markdown.

Chunks arrive from an upstream extraction pipeline with unreliable
offsets; stitch reconciles them against the stored markdown with a
layered matching cascade, repairs overlaps, and verifies that every
recorded offset slices back to the chunk text exactly.

On top of reconciled positions it runs connection detection between
chunks across documents: semantic similarity, contradiction detection,
and thematic bridges.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.stitch/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "stitch home directory (default: ~/.stitch)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
