package main

import (
	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/logging"
)

var (
	checkpointSessionID     string
	checkpointReason        string
	checkpointSkipEmbedding bool
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Run a curation pass over the session's buffered events",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCheckpoint(); err != nil {
			fail(err)
		}
	},
}

func init() {
	checkpointCmd.Flags().StringVar(&checkpointSessionID, "session", "", "session id (required)")
	checkpointCmd.Flags().StringVar(&checkpointReason, "reason", "manual", "reason for the checkpoint, for logging")
	checkpointCmd.Flags().BoolVar(&checkpointSkipEmbedding, "skip-embedding", false, "skip vector indexing of newly created objects")
	rootCmd.AddCommand(checkpointCmd)
}

func runCheckpoint() error {
	if checkpointSessionID == "" {
		return errs.E("cmd.checkpoint", errs.InvalidInput, errRequiredFlag("--session"))
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	logging.GetLogger("cli").Info("checkpoint requested", "session_id", checkpointSessionID, "reason", checkpointReason)
	res, err := eng.Checkpoint(checkpointSessionID, checkpointSkipEmbedding)
	if err != nil {
		return err
	}

	printUnlessQuiet("candidates_extracted: %d\n", res.CandidatesExtracted)
	printUnlessQuiet("memories_created: %d\n", res.MemoriesCreated)
	if res.Holds > 0 {
		printUnlessQuiet("held pending review: %d\n", res.Holds)
	}
	return nil
}
