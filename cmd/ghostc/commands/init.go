package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostmsg/ghostcore/identity"
)

// init: generate the identity key pair for this installation.
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate a new identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := client.CreateIdentity()
			if errors.Is(err, identity.ErrIdentityExists) {
				return fmt.Errorf("an identity already exists in %s", home)
			}
			if err != nil {
				return err
			}
			fmt.Printf("created identity %s\n", ident.ID)
			return nil
		},
	}
}
