package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	gigboard "github.com/gigboard/gigboard-go"
	"github.com/spf13/cobra"
)

var flagReason string

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatHistoryCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatJoinCmd)
	chatCmd.AddCommand(chatFlagCmd)

	chatFlagCmd.Flags().StringVar(&flagReason, "reason", "inappropriate", "Why the message is reported")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Direct messaging commands",
}

// ============================================================================
// chat list
// ============================================================================

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		convs, err := client.Messages.Conversations(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(convs)
		}
		if len(convs) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, c := range convs {
			unread := ""
			if c.Unread > 0 {
				unread = fmt.Sprintf(" (%d unread)", c.Unread)
			}
			fmt.Printf("%-24s %-20s %s%s\n", c.UserID, valueOrDefault(c.Name, "-"), c.LastMessage, unread)
		}
		return nil
	},
}

// ============================================================================
// chat history
// ============================================================================

var chatHistoryCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "Show the messages exchanged with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := getClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store := gigboard.NewConversationStore(client.Messages, logger)
		if err := store.FetchHistory(ctx, args[0]); err != nil {
			return err
		}
		msgs := store.Messages(args[0])
		if jsonOutput {
			return printJSON(msgs)
		}
		for _, m := range msgs {
			who := m.SenderID
			if who == cfg.Auth.UserID {
				who = "you"
			}
			fmt.Printf("[%s] %s: %s\n", m.SentAt, who, m.Message)
		}
		return nil
	},
}

// ============================================================================
// chat send
// ============================================================================

var chatSendCmd = &cobra.Command{
	Use:   "send <user-id> <message...>",
	Short: "Send a direct message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		live, err := getLive(gigboard.LiveOptions{})
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// The socket only carries the room mirror; the send itself is REST.
		if err := live.Start(ctx); err != nil {
			logger.Sugar().Warnf("realtime unavailable, sending without mirror: %v", err)
		}
		defer live.Stop()

		msg, err := live.SendDirect(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(msg)
		}
		fmt.Printf("Sent to %s at %s\n", args[0], msg.SentAt)
		return nil
	},
}

// ============================================================================
// chat join / chat flag
// ============================================================================

// withSocket starts a Live session, runs fn and stops it.
func withSocket(fn func(ctx context.Context, live *gigboard.Live) error) error {
	live, err := getLive(gigboard.LiveOptions{})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := live.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer live.Stop()
	return fn(ctx, live)
}

var chatJoinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a chat room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSocket(func(ctx context.Context, live *gigboard.Live) error {
			if err := live.JoinRoom(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Joined %s\n", args[0])
			return nil
		})
	},
}

var chatFlagCmd = &cobra.Command{
	Use:   "flag <room-id> <message-id>",
	Short: "Report a message for moderation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSocket(func(ctx context.Context, live *gigboard.Live) error {
			if err := live.FlagMessage(ctx, args[0], args[1], flagReason); err != nil {
				return err
			}
			fmt.Printf("Flagged %s\n", args[1])
			return nil
		})
	},
}
