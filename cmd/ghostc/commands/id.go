package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// id: print our Ghost ID and the shareable add payload.
func idCmd() *cobra.Command {
	var payloadOnly bool

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Show your Ghost ID and share payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}

			payload, err := client.ExportAddPayload()
			if err != nil {
				return err
			}
			raw, err := json.Marshal(payload)
			if err != nil {
				return err
			}

			if payloadOnly {
				fmt.Println(string(raw))
				return nil
			}
			fmt.Printf("id:      %s\n", payload.ID)
			fmt.Printf("payload: %s\n", string(raw))
			return nil
		},
	}
	cmd.Flags().BoolVar(&payloadOnly, "payload", false, "print only the JSON payload")
	return cmd
}
