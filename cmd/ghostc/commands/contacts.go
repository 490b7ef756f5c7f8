package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// contacts: list the trust store.
func contactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}

			all, err := client.Contacts().All()
			if err != nil {
				return err
			}
			sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

			for _, c := range all {
				flags := ""
				if c.IsVerified {
					flags += " [verified]"
				}
				if c.IsBlocked {
					flags += " [blocked]"
				}
				if c.SecurityWarning {
					flags += " [KEY CHANGED - run 'ghostc verify']"
				}
				fmt.Printf("%s  %s%s\n", c.ID, c.DisplayName(), flags)
			}
			return nil
		},
	}
}

// add <payload>: trust a contact from a scanned or pasted payload.
func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <payload>",
		Short: "Add a contact from a share payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}

			c, err := client.AddContact([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("added %s (%s)\n", c.ID, c.DisplayName())
			return nil
		},
	}
}

// delete <id>: remove a contact and the conversation.
func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a contact and its conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			if err := client.DeleteContact(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted")
			return nil
		},
	}
}
