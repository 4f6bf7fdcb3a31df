package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gigboard "github.com/gigboard/gigboard-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(disputeCmd)
	disputeCmd.AddCommand(disputeListCmd)
	disputeCmd.AddCommand(disputeShowCmd)
	disputeCmd.AddCommand(disputeReplyCmd)
}

var disputeCmd = &cobra.Command{
	Use:   "dispute",
	Short: "Dispute thread commands",
}

var disputeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your disputes",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		disputes, err := client.Disputes.List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(disputes)
		}
		if len(disputes) == 0 {
			fmt.Println("No disputes.")
			return nil
		}
		for _, d := range disputes {
			fmt.Printf("%-24s %-13s %s\n", d.ID, d.Status, valueOrDefault(d.Title, d.Reason))
		}
		return nil
	},
}

var disputeShowCmd = &cobra.Command{
	Use:   "show <dispute-id>",
	Short: "Show a dispute and its thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store := gigboard.NewDisputeStore(client.Disputes, logger)
		if err := store.FetchDetail(ctx, args[0]); err != nil {
			return err
		}
		d, _ := store.Current()
		if jsonOutput {
			return printJSON(d)
		}

		fmt.Printf("Dispute %s  [%s]\n", d.ID, d.Status)
		if d.Title != "" {
			fmt.Printf("Title:  %s\n", d.Title)
		}
		if d.Reason != "" {
			fmt.Printf("Reason: %s\n", d.Reason)
		}
		fmt.Println()
		for _, m := range d.Messages {
			fmt.Printf("[%s] <%s> %s: %s\n", m.SentAt, valueOrDefault(m.SenderRole, "?"), valueOrDefault(m.SenderName, m.Sender), m.Message)
		}
		if !store.CanCompose() {
			fmt.Println()
			fmt.Println("This dispute is closed to new messages.")
		}
		return nil
	},
}

var disputeReplyCmd = &cobra.Command{
	Use:   "reply <dispute-id> <message...>",
	Short: "Post to a dispute thread",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		live, err := getLive(gigboard.LiveOptions{})
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := live.Disputes.FetchDetail(ctx, args[0]); err != nil {
			return err
		}
		msg, err := live.SendDisputeMessage(ctx, strings.Join(args[1:], " "))
		if errors.Is(err, gigboard.ErrComposeDisabled) {
			d, _ := live.Disputes.Current()
			return fmt.Errorf("dispute %s is %s and no longer accepts messages", args[0], d.Status)
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(msg)
		}
		fmt.Printf("Posted to dispute %s at %s\n", args[0], msg.SentAt)
		return nil
	},
}
