package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// wipe: destroy the account. Irreversible, so it demands --yes.
func wipeCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Destroy the account and all local data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("this destroys the identity and every conversation; re-run with --yes")
			}
			if err := open(); err != nil {
				return err
			}
			if err := client.Wipe(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("account wiped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the wipe")
	return cmd
}
