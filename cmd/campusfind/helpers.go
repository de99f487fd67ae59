package main

import (
	"fmt"
	"os"

	campusfind "github.com/akash-dev-18/campusfind-go"
)

// getClient creates a client authenticated with the saved access token.
func getClient() *campusfind.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.AccessToken == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'campusfind login' first.")
		os.Exit(1)
	}

	var opts []campusfind.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, campusfind.WithBaseURL(cfg.Default.BaseURL))
	}
	if cfg.Auth.RefreshToken != "" {
		opts = append(opts, campusfind.WithRefreshToken(cfg.Auth.RefreshToken))
	}

	return campusfind.NewClient(cfg.Auth.AccessToken, opts...)
}

// getAnonClient creates an unauthenticated client for login and register.
func getAnonClient() *campusfind.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var opts []campusfind.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, campusfind.WithBaseURL(cfg.Default.BaseURL))
	}
	return campusfind.NewClient("", opts...)
}
