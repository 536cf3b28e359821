package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	frontdesk "github.com/frontdesk-ai/console/sdk/golang"
	"github.com/spf13/cobra"
)

var (
	unreadMarkAll bool

	watchEvents string
)

func init() {
	unreadCmd.Flags().BoolVar(&unreadMarkAll, "mark-all", false, "Mark every notification as read")
	watchCmd.Flags().StringVar(&watchEvents, "events", "", "Comma-separated event types to print (default: all known types)")

	rootCmd.AddCommand(unreadCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(watchCmd)
}

// ============================================================================
// unread / read
// ============================================================================

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Show the unread notification count",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getAuthedClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if unreadMarkAll {
			if err := client.Notifications.MarkAllRead(ctx); err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
		}
		count, err := client.Notifications.UnreadCount(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Unread: %d\n", count)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <notification-id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getAuthedClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Notifications.MarkRead(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Marked %s as read.\n", args[0])
		return nil
	},
}

// ============================================================================
// watch
// ============================================================================

var defaultWatchEvents = []string{
	frontdesk.EventNotification,
	frontdesk.EventUnreadCount,
	frontdesk.EventError,
	frontdesk.EventChannelOpen,
	frontdesk.EventChannelClosed,
	frontdesk.EventChannelReconnecting,
	frontdesk.EventChannelFailed,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream realtime events until interrupted",
	Long:  "Open the realtime channel and print each event as a line of JSON.\nThe channel reconnects on its own after network failures.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getAuthedClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt := client.Realtime(nil)
		defer rt.Close()

		printer := &eventPrinter{}
		for _, typ := range parseEventList(watchEvents) {
			rt.Subscribe(typ, printer)
		}
		rt.SubscribeFunc(frontdesk.EventChannelFailed, func(frontdesk.Event) { stop() })

		if err := rt.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial connect failed, retrying")
		}
		fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", client.RealtimeURL())

		<-ctx.Done()
		if msg := rt.ConnError().Get(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		return nil
	},
}

type eventPrinter struct{}

func (eventPrinter) HandleEvent(e frontdesk.Event) {
	payload := strings.TrimSpace(string(e.Payload))
	if payload == "" {
		payload = "{}"
	}
	fmt.Printf("%s %s %s\n", time.Now().Format(time.RFC3339), e.Type, payload)
}

func parseEventList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return defaultWatchEvents
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
