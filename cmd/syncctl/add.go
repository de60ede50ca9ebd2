package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/models"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

var addCmd = &cobra.Command{
	Use:   "add task <title>",
	Short: "Create a task locally and push it on the next sync pass",
	Long: `add inserts a new row into the local store in the pending state,
the same way the app's UI would on an offline edit, then requests a sync
pass to push it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] != "task" {
			return fmt.Errorf("unsupported entity %q; only task creation is wired in the demo CLI", args[0])
		}
		title := args[1]
		description, _ := cmd.Flags().GetString("description")
		listingID, _ := cmd.Flags().GetString("listing")

		eng, store, dev, err := openEngine()
		if err != nil {
			return err
		}
		defer store.Close()
		if dev.UserID == "" {
			return fmt.Errorf("no principal linked; run `syncctl link <user-id>` first")
		}

		ctx := context.Background()
		now := time.Now().UTC()
		fields := map[string]any{
			"id":                 uuid.NewString(),
			"title":              title,
			"status":             "open",
			"updatedAt":          now.Format(time.RFC3339Nano),
			ports.MetaSyncState:  string(models.SyncPending),
			ports.MetaRetryCount: 0,
		}
		if description != "" {
			fields["description"] = description
		}
		if listingID != "" {
			fields["listingId"] = listingID
		}

		if err := store.Upsert(ctx, entitykind.Tasks, ports.Row{Kind: entitykind.Tasks, Fields: fields}); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if err := store.Save(ctx); err != nil {
			return fmt.Errorf("save task: %w", err)
		}

		eng.NotifyLocalMutation()
		eng.RequestSyncAndWait(ctx)

		status := eng.Status()
		if status.LastSyncErrorMessage != "" {
			fmt.Printf("task %s created locally; sync reported: %s\n", fields["id"], status.LastSyncErrorMessage)
			return nil
		}
		fmt.Printf("task %s created and synced\n", fields["id"])
		return nil
	},
}

func init() {
	addCmd.Flags().String("description", "", "longer task description")
	addCmd.Flags().String("listing", "", "listing id this task belongs to")
	rootCmd.AddCommand(addCmd)
}
