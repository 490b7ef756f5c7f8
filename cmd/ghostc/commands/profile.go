package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// profile [name]: show or change our display name.
func profileCmd() *cobra.Command {
	var readReceipts, screenshotNotices string

	cmd := &cobra.Command{
		Use:   "profile [name]",
		Short: "Show or change your display profile and privacy toggles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := open(); err != nil {
				return err
			}
			ctx := cmd.Context()

			if len(args) == 1 {
				if err := client.Relay().Register(ctx); err != nil {
					return err
				}
				current, err := client.MyProfile()
				if err != nil {
					return err
				}
				current.Name = args[0]
				if err := client.SetProfile(ctx, current); err != nil {
					return err
				}
			}

			if readReceipts != "" || screenshotNotices != "" {
				settings, err := client.Privacy()
				if err != nil {
					return err
				}
				if err := applyToggle(&settings.SendReadReceipts, readReceipts); err != nil {
					return err
				}
				if err := applyToggle(&settings.SendScreenshotNotices, screenshotNotices); err != nil {
					return err
				}
				if err := client.SetPrivacy(settings); err != nil {
					return err
				}
			}

			return printProfile()
		},
	}
	cmd.Flags().StringVar(&readReceipts, "read-receipts", "", "on|off: send read receipts")
	cmd.Flags().StringVar(&screenshotNotices, "screenshot-notices", "", "on|off: send screenshot notices")
	return cmd
}

func applyToggle(target *bool, value string) error {
	switch value {
	case "":
	case "on":
		*target = true
	case "off":
		*target = false
	default:
		return fmt.Errorf("expected on or off, got %q", value)
	}
	return nil
}

func printProfile() error {
	profile, err := client.MyProfile()
	if err != nil {
		return err
	}
	settings, err := client.Privacy()
	if err != nil {
		return err
	}

	name := profile.Name
	if name == "" {
		name = "(unset)"
	}
	fmt.Printf("name:               %s\n", name)
	fmt.Printf("read receipts:      %s\n", onOff(settings.SendReadReceipts))
	fmt.Printf("screenshot notices: %s\n", onOff(settings.SendScreenshotNotices))
	return nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
