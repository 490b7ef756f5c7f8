package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostmsg/ghostcore/pinlock"
)

// pin set|clear: manage the local unlock gate.
func pinCmd() *cobra.Command {
	var asPassword bool

	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the unlock PIN",
	}

	set := &cobra.Command{
		Use:   "set <secret>",
		Short: "Set or replace the unlock PIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			kind := pinlock.KindPIN
			if asPassword {
				kind = pinlock.KindPassword
			}
			if err := client.PinLock().Setup(args[0], kind); err != nil {
				return err
			}
			fmt.Println("pin set")
			return nil
		},
	}
	set.Flags().BoolVar(&asPassword, "password", false, "treat the secret as a full password")

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove the unlock PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			if err := client.PinLock().Clear(); err != nil {
				return err
			}
			fmt.Println("pin cleared")
			return nil
		},
	}

	cmd.AddCommand(set, clear)
	return cmd
}
