package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Mark a memory object verified, raising its confidence tier",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runVerify(args[0]); err != nil {
			fail(err)
		}
	},
}

var retireCmd = &cobra.Command{
	Use:   "retire <id>",
	Short: "Retire a memory object, excluding it from retrieval",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRetire(args[0]); err != nil {
			fail(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd, retireCmd)
}

func runVerify(id string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	obj, err := eng.Verify(id)
	if err != nil {
		return err
	}
	verifiedAt := "unknown"
	if obj.LastVerifiedAt != nil {
		verifiedAt = obj.LastVerifiedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	fmt.Printf("verified: %s (last_verified_at: %s)\n", obj.ID, verifiedAt)
	return nil
}

func runRetire(id string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Retire(id); err != nil {
		return err
	}
	printUnlessQuiet("retired: %s\n", id)
	return nil
}
