package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Show recently suppressed local-authoritative overwrites",
	Long: `conflicts lists the observational history the conflict resolver
records whenever a pending local row that is not in flight suppresses
a remote write.
Purely informational; never read by engine logic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.RecentConflicts(context.Background(), limit)
		if err != nil {
			return fmt.Errorf("recent conflicts: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("no recent conflicts")
			return nil
		}
		fmt.Printf("%-24s %-24s %-12s %s\n", "TIME", "KIND", "ID", "REASON")
		for _, c := range recs {
			fmt.Printf("%-24s %-24s %-12s local-authoritative overwrite suppressed\n",
				c.At.Format("2006-01-02T15:04:05Z07:00"), c.Kind, c.ID)
		}
		return nil
	},
}

func init() {
	conflictsCmd.Flags().Int("limit", 20, "maximum number of conflict records to show")
	rootCmd.AddCommand(conflictsCmd)
}
