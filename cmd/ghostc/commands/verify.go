package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// verify <id>: print the safety number; optionally record the outcome
// or decide a staged key rotation.
func verifyCmd() *cobra.Command {
	var mark, approveKey, rejectKey bool

	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Show a contact's safety number and manage trust",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			id := args[0]

			switch {
			case approveKey:
				if err := client.Contacts().ApprovePendingKey(id); err != nil {
					return err
				}
				fmt.Println("new key approved; verify the safety number again out of band")
			case rejectKey:
				if err := client.Contacts().RejectPendingKey(id); err != nil {
					return err
				}
				fmt.Println("new key rejected")
			}

			number, err := client.SafetyNumber(id)
			if err != nil {
				return err
			}
			fmt.Printf("safety number: %s\n", number)

			if mark {
				if err := client.Contacts().SetVerified(id, true); err != nil {
					return err
				}
				fmt.Println("marked verified")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&mark, "mark", false, "record a successful out-of-band comparison")
	cmd.Flags().BoolVar(&approveKey, "approve-key", false, "accept a staged key rotation")
	cmd.Flags().BoolVar(&rejectKey, "reject-key", false, "discard a staged key rotation")
	return cmd
}
