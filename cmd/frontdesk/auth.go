package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	frontdesk "github.com/frontdesk-ai/console/sdk/golang"
	"github.com/spf13/cobra"
)

const envPassword = "FRONTDESK_PASSWORD"

var (
	loginEmail    string
	loginPassword string

	whoamiJSON bool
)

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (default $"+envPassword+")")
	_ = loginCmd.MarkFlagRequired("email")
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "Output raw JSON")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

// ============================================================================
// login
// ============================================================================

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := loginPassword
		if password == "" {
			password = os.Getenv(envPassword)
		}
		if password == "" {
			return fmt.Errorf("no password given; use --password or set %s", envPassword)
		}

		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := client.Auth.Login(ctx, &frontdesk.LoginOptions{Email: loginEmail, Password: password})
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		fmt.Println("Login successful!")
		if res.User != nil {
			fmt.Printf("  User ID: %s\n", res.User.ID)
			fmt.Printf("  Email:   %s\n", res.User.Email)
		}
		return nil
	},
}

// ============================================================================
// logout
// ============================================================================

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}
		if !client.Store().IsAuthenticated() {
			fmt.Println("Not logged in.")
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Auth.Logout(ctx); err != nil {
			// Local credentials are already gone at this point.
			logger.Warn().Err(err).Msg("server logout failed")
		}
		fmt.Println("Logged out.")
		return nil
	},
}

// ============================================================================
// whoami
// ============================================================================

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getAuthedClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		me, err := client.Auth.Me(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if whoamiJSON {
			data, _ := json.MarshalIndent(me, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("User ID: %s\n", me.ID)
		fmt.Printf("Email:   %s\n", me.Email)
		fmt.Printf("Name:    %s\n", valueOrDefault(me.Name, "(not set)"))
		fmt.Printf("Role:    %s\n", valueOrDefault(me.Role, "(not set)"))
		return nil
	},
}
