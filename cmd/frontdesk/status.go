package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and session status",
	Long:  "Display the current configuration and, when signed in, fetch the live account and unread count.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := getClient()
		if err != nil {
			return err
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Environment: %s\n", valueOrDefault(cfg.Default.Environment, "(not set)"))
		if cfg.Default.BaseURL != "" {
			fmt.Printf("  Base URL:    %s\n", cfg.Default.BaseURL)
		}
		fmt.Printf("  Realtime:    %s\n", client.RealtimeURL())

		fmt.Println()
		fmt.Println("Auth:")
		if !client.Store().IsAuthenticated() {
			fmt.Println("  Session:     (not logged in)")
			return nil
		}
		fmt.Printf("  Email:       %s\n", valueOrDefault(cfg.Auth.Email, "(unknown)"))
		fmt.Printf("  User ID:     %s\n", valueOrDefault(cfg.Auth.UserID, "(unknown)"))
		fmt.Printf("  Token:       %s\n", maskToken(cfg.Auth.AccessToken))
		if cfg.Auth.RefreshToken == "" {
			fmt.Println("  Refresh:     (none, session ends when the token expires)")
		}

		fmt.Println()
		fmt.Println("Live status:")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		me, err := client.Auth.Me(ctx)
		if err != nil {
			fmt.Printf("  Error fetching account info: %v\n", err)
			return nil
		}
		fmt.Printf("  Name:        %s\n", valueOrDefault(me.Name, "(not set)"))
		fmt.Printf("  Role:        %s\n", valueOrDefault(me.Role, "(not set)"))

		count, err := client.Notifications.UnreadCount(ctx)
		if err != nil {
			fmt.Printf("  Error fetching unread count: %v\n", err)
			return nil
		}
		fmt.Printf("  Unread:      %d\n", count)
		return nil
	},
}
