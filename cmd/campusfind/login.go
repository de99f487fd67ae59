package main

import (
	"context"
	"fmt"
	"os"
	"time"

	campusfind "github.com/akash-dev-18/campusfind-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string

	registerEmail     string
	registerPassword  string
	registerFullName  string
	registerStudentID string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginEmail == "" || loginPassword == "" {
			return fmt.Errorf("--email and --password are required")
		}

		client := getAnonClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Auth.Login(ctx, loginEmail, loginPassword)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Auth.AccessToken = result.AccessToken
		cfg.Auth.RefreshToken = result.RefreshToken
		cfg.Auth.UserID = result.User.ID
		cfg.Auth.Email = result.User.Email
		cfg.Auth.TokenExpires = tokenExpiry(result.AccessToken)
		if err := saveConfig(cfg); err != nil {
			return err
		}

		fmt.Printf("Logged in as %s (%s)\n", result.User.DisplayName(), result.User.Email)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and save the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if registerEmail == "" || registerPassword == "" || registerFullName == "" {
			return fmt.Errorf("--email, --password and --name are required")
		}

		client := getAnonClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := client.Auth.Register(ctx, &campusfind.RegisterOptions{
			Email:     registerEmail,
			Password:  registerPassword,
			FullName:  registerFullName,
			StudentID: registerStudentID,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Auth.AccessToken = result.AccessToken
		cfg.Auth.RefreshToken = result.RefreshToken
		cfg.Auth.UserID = result.User.ID
		cfg.Auth.Email = result.User.Email
		cfg.Auth.TokenExpires = tokenExpiry(result.AccessToken)
		if err := saveConfig(cfg); err != nil {
			return err
		}

		fmt.Printf("Registered %s\n", result.User.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and clear the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.AccessToken != "" {
			client := getClient()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Auth.Logout(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: server logout failed: %v\n", err)
			}
		}

		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

// tokenExpiry extracts the exp claim from a JWT without verifying it. The
// value is informational only; the server remains the authority.
func tokenExpiry(token string) string {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ""
	}
	return exp.UTC().Format(time.RFC3339)
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")

	registerCmd.Flags().StringVar(&registerEmail, "email", "", "account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "account password")
	registerCmd.Flags().StringVar(&registerFullName, "name", "", "full name")
	registerCmd.Flags().StringVar(&registerStudentID, "student-id", "", "student id")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
}
