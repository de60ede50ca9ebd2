package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the engine's current status snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, dev, err := openEngine()
		if err != nil {
			return err
		}
		defer store.Close()

		s := eng.Status()
		fmt.Printf("device:     %s\n", dev.ID)
		fmt.Printf("principal:  %s (admin=%v)\n", dev.UserID, dev.IsAdmin)
		fmt.Printf("syncing:    %v\n", s.IsSyncing)
		fmt.Printf("breaker:    %s\n", s.BreakerState)
		fmt.Printf("connection: %s", s.Connection)
		if s.Connection == "reconnecting" {
			fmt.Printf(" (attempt %d/%d)", s.ConnectionAttempt, s.ConnectionMaxAttempts)
		}
		fmt.Println()
		if !s.LastSyncTime.IsZero() {
			fmt.Printf("last sync:  %s\n", s.LastSyncTime.Format("2006-01-02T15:04:05Z07:00"))
		} else {
			fmt.Println("last sync:  never")
		}
		if s.LastSyncErrorMessage != "" {
			fmt.Printf("last error: %s\n", s.LastSyncErrorMessage)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
