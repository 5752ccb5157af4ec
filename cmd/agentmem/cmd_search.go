package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/store"
)

var (
	searchSessionID string
	searchStatus    string
	searchType      string
	searchLimit     int
	searchSkipReinf bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search memory objects with the hybrid retriever",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSearch(strings.Join(args, " ")); err != nil {
			fail(err)
		}
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchSessionID, "session", "", "session id, for session-affinity boosting")
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "filter by status (active, retired, superseded)")
	searchCmd.Flags().StringVar(&searchType, "type", "", "filter by object type")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	searchCmd.Flags().BoolVar(&searchSkipReinf, "skip-reinforcement", false, "do not bump access_count/last_accessed for results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(query string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	filter := store.ObjectFilter{
		Status:     store.Status(searchStatus),
		ObjectType: store.ObjectType(searchType),
	}

	results, err := eng.Search(cmdContext(), searchSessionID, query, filter, searchLimit, searchSkipReinf)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		printUnlessQuiet("no results\n")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s  (%s, %s)\n", i+1, r.Score, r.Object.Content, r.Object.ObjectType, r.Object.ID)
	}
	return nil
}
