package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostmsg/ghostcore/contact"
)

// request <payload>: add the peer and send them a contact request.
func requestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request <payload>",
		Short: "Send a contact request from a share payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			if err := client.Relay().Register(cmd.Context()); err != nil {
				return err
			}
			if err := client.SendContactRequest(cmd.Context(), []byte(args[0])); err != nil {
				return err
			}
			fmt.Println("request sent")
			return nil
		},
	}
}

// requests: list pending contact requests, optionally deciding them.
func requestsCmd() *cobra.Command {
	var accept, reject string

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List and decide pending contact requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := client.Relay().Register(ctx); err != nil {
				return err
			}

			pending, err := client.PollFriendRequests(ctx)
			if err != nil {
				return err
			}

			for _, req := range pending {
				switch {
				case accept == req.Payload.ID:
					if err := client.AcceptFriendRequest(ctx, req); err != nil {
						return err
					}
					fmt.Printf("accepted %s\n", req.Payload.ID)
				case reject == req.Payload.ID:
					if err := client.RejectFriendRequest(ctx, req); err != nil {
						return err
					}
					fmt.Printf("rejected %s\n", req.Payload.ID)
				default:
					note := ""
					if req.Observation == contact.KeyMismatch {
						note = "  (KEY CHANGED for a known contact)"
					}
					fmt.Printf("%s  %s%s\n", req.Payload.ID, req.Payload.Name, note)
				}
			}
			if len(pending) == 0 {
				fmt.Println("no pending requests")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&accept, "accept", "", "accept the request from this ID")
	cmd.Flags().StringVar(&reject, "reject", "", "reject the request from this ID")
	return cmd
}
