package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/errs"
)

var (
	discloseSessionID string
	discloseQuery     string
	discloseCheck     bool
)

var discloseCmd = &cobra.Command{
	Use:   "disclose",
	Short: "Evaluate whether the current turn should escalate disclosure level",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDisclose(); err != nil {
			fail(err)
		}
	},
}

func init() {
	discloseCmd.Flags().StringVar(&discloseSessionID, "session", "", "session id (required)")
	discloseCmd.Flags().StringVar(&discloseQuery, "query", "", "the turn text to evaluate")
	discloseCmd.Flags().BoolVar(&discloseCheck, "check", true, "run the escalation check (always true; kept for CLI surface compatibility)")
	rootCmd.AddCommand(discloseCmd)
}

func runDisclose() error {
	if discloseSessionID == "" {
		return errs.E("cmd.disclose", errs.InvalidInput, errRequiredFlag("--session"))
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	signal, level, needed, err := eng.DiscloseCheck(discloseQuery, discloseSessionID, "")
	if err != nil {
		return err
	}

	fmt.Printf("needed: %v\n", needed)
	if needed {
		fmt.Printf("trigger: %s\n", signal)
		fmt.Printf("suggested_level: %s\n", level)
	}
	return nil
}
