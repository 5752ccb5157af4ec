package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/store"
)

var (
	ingestSessionID     string
	ingestType          string
	ingestTool          string
	ingestFilePath      string
	ingestExitCode      int
	ingestHasExitCode   bool
	ingestSkipEmbedding bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <content...>",
	Short: "Append one event to the current session's journal",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ingestHasExitCode = cmd.Flags().Changed("exit-code")
		if err := runIngest(strings.Join(args, " ")); err != nil {
			fail(err)
		}
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSessionID, "session", "", "session id (required)")
	ingestCmd.Flags().StringVar(&ingestType, "type", string(store.EventTurn), "event type")
	ingestCmd.Flags().StringVar(&ingestTool, "tool", "", "tool name, for tool_call/tool_output events")
	ingestCmd.Flags().StringVar(&ingestFilePath, "file-path", "", "file path, for diff events")
	ingestCmd.Flags().IntVar(&ingestExitCode, "exit-code", 0, "exit code, for tool_output events")
	ingestCmd.Flags().BoolVar(&ingestSkipEmbedding, "skip-embedding", false, "skip vector indexing if this ingest triggers a checkpoint")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(content string) error {
	if ingestSessionID == "" {
		return errs.E("cmd.ingest", errs.InvalidInput, errRequiredFlag("--session"))
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	eventType := store.EventType(ingestType)
	if !store.IsValidEventType(eventType) {
		return errs.E("cmd.ingest", errs.InvalidInput, errUnrecognizedEventType(ingestType))
	}

	req := engine.IngestRequest{
		SessionID:     ingestSessionID,
		Content:       content,
		Type:          eventType,
		ToolName:      ingestTool,
		FilePath:      ingestFilePath,
		SkipEmbedding: ingestSkipEmbedding,
	}
	if ingestHasExitCode {
		req.ExitCode = &ingestExitCode
	}

	res, err := eng.Ingest(req)
	if err != nil {
		return err
	}

	printUnlessQuiet("event_id: %s\n", res.EventID)
	if res.Checkpoint != nil {
		printUnlessQuiet("checkpoint triggered (%s): %d memories created\n", res.Trigger, res.Checkpoint.MemoriesCreated)
	}
	return nil
}
