package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brightfield-crm/syncengine/internal/syncconfig"
)

var linkCmd = &cobra.Command{
	Use:   "link <user-id>",
	Short: "Link this device to a principal user id",
	Long: `link persists the current principal (user id, admin bit) this
device syncs as. The engine itself never authenticates anyone; link is
the demo CLI's stand-in for whatever the real app's auth flow would set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")

		dev, err := syncconfig.LoadDevice()
		if err != nil {
			return fmt.Errorf("load device: %w", err)
		}
		dev.UserID = args[0]
		dev.IsAdmin = admin
		if err := syncconfig.SaveDevice(dev); err != nil {
			return fmt.Errorf("save device: %w", err)
		}
		fmt.Printf("linked device %s to user %s (admin=%v)\n", dev.ID, dev.UserID, dev.IsAdmin)
		return nil
	},
}

func init() {
	linkCmd.Flags().Bool("admin", false, "grant admin-gated sync passes (listing types, activity templates)")
	rootCmd.AddCommand(linkCmd)
}
