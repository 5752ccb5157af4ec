package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/dependencies"
	"github.com/agentmem/agentmem/internal/errs"
)

var (
	statsJSON bool
	checkJSON bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report storage statistics",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStats(); err != nil {
			fail(err)
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report dependency staleness (embedder/vector-store availability)",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCheck(); err != nil {
			fail(err)
		}
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print as JSON")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(statsCmd, checkCmd)
}

func runStats() error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.Stats()
	if err != nil {
		return err
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return errs.E("cmd.stats", errs.Storage, err)
		}
		return nil
	}

	fmt.Printf("path: %s\n", stats.Path)
	fmt.Printf("schema_version: %d\n", stats.SchemaVersion)
	fmt.Printf("events: %d\n", stats.EventCount)
	fmt.Printf("objects: %d (active: %d)\n", stats.ObjectCount, stats.ActiveCount)
	fmt.Printf("sessions: %d\n", stats.SessionCount)
	fmt.Printf("vectors: %d\n", stats.VectorCount)
	fmt.Printf("file_size_bytes: %d\n", stats.FileSizeBytes)
	return nil
}

func runCheck() error {
	eng, cfg, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	result := dependencies.Check(
		dependencies.EmbedderConfig{
			Enabled:        cfg.Embedder.Enabled,
			BaseURL:        cfg.Embedder.BaseURL,
			EmbeddingModel: cfg.Embedder.EmbeddingModel,
		},
		dependencies.VectorStoreConfig{
			Enabled: cfg.VectorIdx.Backend == "qdrant",
			URL:     cfg.VectorIdx.URL,
		},
	)

	if checkJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return errs.E("cmd.check", errs.Storage, err)
		}
		return nil
	}

	fmt.Printf("embedder: %s — %s\n", result.Embedder.Status, result.Embedder.Message)
	fmt.Printf("vector_store: %s — %s\n", result.VectorStore.Status, result.VectorStore.Message)
	return nil
}
