package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func printConversation(contactID string) error {
	history, err := client.Messages().List(contactID)
	if err != nil {
		return err
	}
	// Stored newest-first; print oldest-first.
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		who := contactID
		if m.IsMe {
			who = "me"
		}
		if m.System {
			who = "system"
		}
		ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
		body := m.Text
		if m.LocalURI != "" {
			body = fmt.Sprintf("[%s %s] %s", m.MediaType, m.LocalURI, m.Text)
		}
		fmt.Printf("%s %-12s %s\n", ts, who, body)
	}
	return nil
}

// recv [id]: poll once and print a conversation.
func recvCmd() *cobra.Command {
	var markRead bool

	cmd := &cobra.Command{
		Use:   "recv [id]",
		Short: "Poll the relay and print a conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := client.Relay().Register(ctx); err != nil {
				return err
			}
			if err := client.Poll(ctx); err != nil {
				return err
			}
			if len(args) == 0 {
				return nil
			}

			// Opening a conversation runs an opportunistic expiry sweep.
			if err := client.Messages().Sweep(args[0], time.Now()); err != nil {
				return err
			}
			if err := printConversation(args[0]); err != nil {
				return err
			}
			if markRead {
				return client.MarkRead(ctx, args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&markRead, "read", false, "mark the conversation read (may send a receipt)")
	return cmd
}

// watch: run the background loops until interrupted.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print incoming messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := client.Start(ctx); err != nil {
				return err
			}
			defer client.Stop()

			fmt.Println("watching; ctrl-c to stop")
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			for {
				select {
				case e := <-client.Events():
					fmt.Printf("event: contact=%s kind=%s message=%s\n",
						e.ContactID, e.Kind, e.MessageID)
				case <-sig:
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}
