package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, _ := configPath()

		fmt.Printf("Config file: %s\n\n", path)
		fmt.Println("[default]")
		fmt.Printf("  base_url = %q\n\n", cfg.Default.BaseURL)
		fmt.Println("[auth]")
		fmt.Printf("  access_token  = %s\n", maskToken(cfg.Auth.AccessToken))
		fmt.Printf("  refresh_token = %s\n", maskToken(cfg.Auth.RefreshToken))
		fmt.Printf("  user_id       = %q\n", cfg.Auth.UserID)
		fmt.Printf("  email         = %q\n", cfg.Auth.Email)
		fmt.Printf("  token_expires = %q\n", cfg.Auth.TokenExpires)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("Set %s\n", args[0])
		return nil
	},
}

func maskToken(token string) string {
	if token == "" {
		return `""`
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
