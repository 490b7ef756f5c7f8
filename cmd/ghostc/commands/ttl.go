package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// ttl <id> [seconds]: show or set a conversation's ephemeral TTL.
func ttlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ttl <id> [seconds]",
		Short: "Show or set a conversation's disappearing-message timer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			id := args[0]

			if len(args) == 1 {
				ttl, err := client.Messages().TTL(id)
				if err != nil {
					return err
				}
				if ttl == 0 {
					fmt.Println("disabled")
				} else {
					fmt.Printf("%ds\n", ttl)
				}
				return nil
			}

			seconds, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seconds value: %w", err)
			}
			if err := client.Messages().SetTTL(id, seconds); err != nil {
				return err
			}
			if seconds <= 0 {
				fmt.Println("timer disabled")
			} else {
				fmt.Printf("messages now expire after %ds\n", seconds)
			}
			return nil
		},
	}
}
