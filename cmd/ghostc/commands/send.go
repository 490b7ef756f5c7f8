package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// send <id> <message>: encrypt and queue a chat message.
func sendCmd() *cobra.Command {
	var mediaPath, mediaType string

	cmd := &cobra.Command{
		Use:   "send <id> [message]",
		Short: "Send a message or media attachment",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := client.Relay().Register(ctx); err != nil {
				return err
			}

			to := args[0]
			text := ""
			if len(args) == 2 {
				text = args[1]
			}

			if mediaPath != "" {
				data, err := os.ReadFile(mediaPath)
				if err != nil {
					return err
				}
				m, err := client.SendMedia(ctx, to, mediaType, data, text)
				if err != nil {
					return err
				}
				fmt.Printf("sent %s\n", m.ID)
				return nil
			}

			if text == "" {
				return fmt.Errorf("message text or --media required")
			}
			m, err := client.SendText(ctx, to, text)
			if err != nil {
				return err
			}
			fmt.Printf("sent %s\n", m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&mediaPath, "media", "", "path to an image attachment")
	cmd.Flags().StringVar(&mediaType, "media-type", "image/jpeg", "attachment MIME type")
	return cmd
}
