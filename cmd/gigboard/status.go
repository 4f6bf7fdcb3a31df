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
	Short: "Show current configuration and account status",
	Long:  "Display the resolved configuration and fetch the signed-in account.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:   %s\n", valueOrDefault(cfg.Default.BaseURL, "(default)"))
		fmt.Printf("  Socket URL: %s\n", valueOrDefault(cfg.Default.SocketURL, "(derived from base URL)"))

		fmt.Println()
		fmt.Println("Auth:")
		fmt.Printf("  User ID:    %s\n", valueOrDefault(cfg.Auth.UserID, "(not set)"))
		if cfg.Auth.Token != "" {
			fmt.Printf("  Token:      %s\n", maskKey(cfg.Auth.Token))
		} else {
			fmt.Println("  Token:      (not set)")
			return nil
		}

		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Println()
		fmt.Println("Live status:")
		me, err := client.Users.Me(ctx)
		if err != nil {
			fmt.Printf("  Error fetching account info: %v\n", err)
			return nil
		}
		fmt.Printf("  Name:       %s\n", me.Name)
		fmt.Printf("  Role:       %s\n", valueOrDefault(me.Role, "(unknown)"))
		if me.ID != cfg.Auth.UserID {
			fmt.Printf("  Warning:    token belongs to %s, config says %s\n", me.ID, cfg.Auth.UserID)
		}

		if convs, err := client.Messages.Conversations(ctx); err == nil {
			unread := 0
			for _, c := range convs {
				unread += c.Unread
			}
			fmt.Printf("  Conversations: %d (%d unread)\n", len(convs), unread)
		}
		return nil
	},
}
