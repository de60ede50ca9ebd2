package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/entitysync"
)

var retryCmd = &cobra.Command{
	Use:   "retry <kind> <id>",
	Short: "Manually retry a single failed row",
	Long: `retry resets one failed row back to pending after its exponential
backoff delay, then requests a sync pass. Refuses once the row has
exhausted its retry cap; rows stuck past the cap are picked up by the
engine's hourly auto-recovery pass instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := entitykind.Normalize(args[0])
		if !ok {
			return fmt.Errorf("unknown entity kind %q", args[0])
		}
		id := args[1]

		eng, store, _, err := openEngine()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		if err := eng.RetryRow(ctx, kind, id); err != nil {
			if errors.Is(err, entitysync.ErrRetryCapped) {
				fmt.Printf("%s/%s has exhausted its retry budget; waiting for auto-recovery\n", kind, id)
				return nil
			}
			return err
		}
		eng.RequestSyncAndWait(ctx)
		fmt.Printf("%s/%s reset to pending and synced\n", kind, id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
