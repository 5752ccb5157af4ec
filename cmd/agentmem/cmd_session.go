package main

import (
	"github.com/spf13/cobra"
)

var sessionWorkingDir string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage agent sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [session-id]",
	Short: "Start a session, auto-detecting its id unless given",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		overrideID := ""
		if len(args) == 1 {
			overrideID = args[0]
		}
		if err := runSessionStart(overrideID, sessionWorkingDir); err != nil {
			fail(err)
		}
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSessionEnd(args[0]); err != nil {
			fail(err)
		}
	},
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionWorkingDir, "working-directory", "", "working directory for session-id detection")
	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionStart(overrideID, workingDir string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	sess, err := eng.SessionStart(overrideID, workingDir)
	if err != nil {
		return err
	}
	printUnlessQuiet("session started: %s\n", sess.ID)
	return nil
}

func runSessionEnd(id string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.SessionEnd(id); err != nil {
		return err
	}
	printUnlessQuiet("session ended: %s\n", id)
	return nil
}
