package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var conversationsJSON bool

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List message threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		convos, err := client.Messages.Conversations(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if conversationsJSON {
			data, _ := json.MarshalIndent(convos, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(convos) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}
		for _, c := range convos {
			marker := " "
			if c.UnreadCount > 0 {
				marker = "*"
			}
			fmt.Printf("%s %-36s  %-24s  %s\n", marker, c.User.ID, c.User.DisplayName(), c.LastMessage)
		}
		return nil
	},
}

func init() {
	conversationsCmd.Flags().BoolVar(&conversationsJSON, "json", false, "raw JSON output")
	rootCmd.AddCommand(conversationsCmd)
}
