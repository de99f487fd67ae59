package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show login status and verify the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		baseURL := cfg.Default.BaseURL
		if baseURL == "" {
			baseURL = "(default)"
		}
		fmt.Printf("Base URL: %s\n", baseURL)

		if cfg.Auth.AccessToken == "" {
			fmt.Println("Status:   not logged in")
			return nil
		}

		fmt.Printf("Account:  %s\n", cfg.Auth.Email)
		if cfg.Auth.TokenExpires != "" {
			if exp, err := time.Parse(time.RFC3339, cfg.Auth.TokenExpires); err == nil {
				if time.Now().After(exp) {
					fmt.Printf("Token:    expired %s\n", exp.Local().Format(time.RFC822))
				} else {
					fmt.Printf("Token:    valid until %s\n", exp.Local().Format(time.RFC822))
				}
			}
		}

		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		me, err := client.Users.Me(ctx)
		if err != nil {
			fmt.Printf("Status:   session check failed: %v\n", err)
			return nil
		}
		fmt.Printf("Status:   logged in as %s (reputation %d)\n", me.DisplayName(), me.ReputationScore)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
