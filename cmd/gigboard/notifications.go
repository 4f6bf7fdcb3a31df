package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var notificationsUnread bool

func init() {
	notificationsCmd.Flags().BoolVar(&notificationsUnread, "unread", false, "Only show unread notifications")
	rootCmd.AddCommand(notificationsCmd)
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List stored notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		all, err := client.Notifications.List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		list := all[:0]
		for _, n := range all {
			if !notificationsUnread || !n.Read {
				list = append(list, n)
			}
		}
		if jsonOutput {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No notifications.")
			return nil
		}
		for _, n := range list {
			mark := " "
			if !n.Read {
				mark = "*"
			}
			fmt.Printf("%s [%s] %s: %s\n", mark, n.CreatedAt, n.Title, n.Message)
		}
		return nil
	},
}
