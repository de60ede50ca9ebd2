package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass (syncDown, syncUp, finalize) and report the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, dev, err := openEngine()
		if err != nil {
			return err
		}
		defer store.Close()

		if dev.UserID == "" {
			return fmt.Errorf("no principal linked; run `syncctl link <user-id>` first")
		}

		ctx := context.Background()
		eng.RequestSyncAndWait(ctx)

		status := eng.Status()
		if status.LastSyncErrorMessage != "" {
			fmt.Printf("sync completed with error: %s\n", status.LastSyncErrorMessage)
			return nil
		}
		fmt.Printf("sync complete at %s (breaker=%s)\n", status.LastSyncTime.Format("2006-01-02T15:04:05Z07:00"), status.BreakerState)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
