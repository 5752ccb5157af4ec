package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/disclosure"
	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/store"
)

var (
	packSessionID string
	packLevel     string
	packQuery     string
	packFile      string
	packFormat    string
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build a token-budgeted context pack for the current session",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPack(); err != nil {
			fail(err)
		}
	},
}

func init() {
	packCmd.Flags().StringVar(&packSessionID, "session", "", "session id (required)")
	packCmd.Flags().StringVar(&packLevel, "level", "minimal", "disclosure level: minimal, task, deep")
	packCmd.Flags().StringVar(&packQuery, "query", "", "query to bias task/deep-level retrieval")
	packCmd.Flags().StringVar(&packFile, "file", "", "file path to bias task/deep-level retrieval")
	packCmd.Flags().StringVarP(&packFormat, "format", "f", "text", "output format: text, json")
	rootCmd.AddCommand(packCmd)
}

func runPack() error {
	if packSessionID == "" {
		return errs.E("cmd.pack", errs.InvalidInput, errRequiredFlag("--session"))
	}
	level := store.DisclosureLevel(packLevel)

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	pack, err := eng.Pack(cmdContext(), packSessionID, disclosure.Request{
		Level: level,
		Query: packQuery,
		File:  packFile,
	})
	if err != nil {
		return err
	}

	if packFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(pack); err != nil {
			return errs.E("cmd.pack", errs.Storage, err)
		}
		return nil
	}

	fmt.Printf("level: %s, tokens_used: %d, objects: %d\n", pack.Level, pack.TokensUsed, len(pack.Objects))
	for _, o := range pack.Objects {
		fmt.Printf("- [%s] %s\n", o.ObjectType, o.Content)
	}
	return nil
}
