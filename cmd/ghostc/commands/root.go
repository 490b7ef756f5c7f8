// Package commands implements the ghostc CLI.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ghostmsg/ghostcore"
)

var (
	home     string
	relayURL string
	pin      string
	verbose  bool

	client *ghostcore.Ghost
)

func Execute() error {
	root := &cobra.Command{
		Use:   "ghostc",
		Short: "Encrypted peer-to-peer messaging CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}

			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".ghostc")
			}

			g, err := ghostcore.New(ghostcore.Options{
				DataDir:  home,
				RelayURL: relayURL,
			})
			if err != nil {
				return err
			}
			client = g
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if client != nil {
				return client.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.ghostc)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "http://127.0.0.1:8080", "relay base URL")
	root.PersistentFlags().StringVar(&pin, "pin", "", "unlock PIN or password, if one is set")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		initCmd(), idCmd(),
		contactsCmd(), addCmd(), requestCmd(), requestsCmd(),
		sendCmd(), recvCmd(), watchCmd(),
		verifyCmd(), ttlCmd(), pinCmd(), profileCmd(),
		deleteCmd(), wipeCmd(),
	)
	return root.Execute()
}

// open loads the identity, unlocks storage, and enforces the PIN lock.
func open() error {
	if _, err := client.Open(); err != nil {
		return fmt.Errorf("no identity; run 'ghostc init' first: %w", err)
	}

	enabled, err := client.PinLock().Enabled()
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	if pin == "" {
		return fmt.Errorf("a PIN is set; pass it with --pin")
	}
	result, err := client.PinLock().Verify(pin)
	if err != nil {
		return err
	}
	if !result.OK {
		if result.RemainingLockout > 0 {
			return fmt.Errorf("locked out, try again in %s", result.RemainingLockout.Round(time.Second))
		}
		return fmt.Errorf("wrong PIN")
	}
	return nil
}
