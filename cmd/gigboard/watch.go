package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gigboard "github.com/gigboard/gigboard-go"
	"github.com/spf13/cobra"
)

var (
	watchWith    []string
	watchDispute string
	watchTTL     time.Duration
)

func init() {
	watchCmd.Flags().StringSliceVar(&watchWith, "with", nil, "Load and follow conversations with these user ids")
	watchCmd.Flags().StringVar(&watchDispute, "dispute", "", "Load and follow a dispute thread")
	watchCmd.Flags().DurationVar(&watchTTL, "toast-ttl", 5*time.Second, "How long a toast stays active")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow messages, disputes and notifications live",
	Long:  "Open the realtime socket and print toasts, presence changes and thread updates until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		live, err := getLive(gigboard.LiveOptions{ToastTTL: watchTTL})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		live.Toasts.OnShow(func(t gigboard.Toast) {
			fmt.Printf("[%s] %s: %s\n", t.ShownAt.Format("15:04:05"), t.Title, t.Body)
		})
		live.Presence.OnChange(func(online []string) {
			fmt.Printf("online: %s\n", strings.Join(online, ", "))
		})
		live.Disputes.OnChange(func(d gigboard.Dispute) {
			if n := len(d.Messages); n > 0 {
				m := d.Messages[n-1]
				fmt.Printf("dispute %s <%s> %s: %s\n", d.ID, m.SenderRole, valueOrDefault(m.SenderName, m.Sender), m.Message)
			}
		})

		for _, id := range watchWith {
			if err := live.Conversations.FetchHistory(ctx, id); err != nil {
				return err
			}
			fmt.Printf("loaded %d messages with %s\n", len(live.Conversations.Messages(id)), id)
		}
		if watchDispute != "" {
			if err := live.Disputes.FetchDetail(ctx, watchDispute); err != nil {
				return err
			}
		}

		if err := live.Start(ctx); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer live.Stop()
		fmt.Fprintln(os.Stderr, "watching; press Ctrl-C to stop")

		<-ctx.Done()
		return nil
	},
}
