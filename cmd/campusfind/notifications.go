package main

import (
	"context"
	"fmt"
	"time"

	campusfind "github.com/akash-dev-18/campusfind-go"
	"github.com/spf13/cobra"
)

var (
	notificationsUnread bool
	notificationsLimit  int
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		filters := &campusfind.NotificationFilters{Limit: notificationsLimit}
		if notificationsUnread {
			unread := false
			filters.IsRead = &unread
		}

		notifs, err := client.Notifications.List(ctx, filters)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if len(notifs) == 0 {
			fmt.Println("No notifications.")
			return nil
		}
		for _, n := range notifs {
			marker := " "
			if !n.IsRead {
				marker = "*"
			}
			fmt.Printf("%s %-14s  %s\n", marker, n.Type, n.Message)
		}
		return nil
	},
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification read",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Notifications.MarkAllRead(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("All notifications marked read.")
		return nil
	},
}

func init() {
	notificationsCmd.Flags().BoolVar(&notificationsUnread, "unread", false, "only unread notifications")
	notificationsCmd.Flags().IntVar(&notificationsLimit, "limit", 20, "maximum results")
	notificationsCmd.AddCommand(notificationsReadAllCmd)
	rootCmd.AddCommand(notificationsCmd)
}
