// ghost-relay is the in-memory development relay. It ferries opaque
// ciphertext between clients; run it next to ghostc for local testing.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ghostmsg/ghostcore/devrelay"
)

func main() {
	var addr string

	root := &cobra.Command{
		Use:   "ghost-relay",
		Short: "In-memory development relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := &http.Server{
				Addr:              addr,
				Handler:           devrelay.NewServer().Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			logrus.WithField("addr", addr).Info("Relay listening")
			return srv.ListenAndServe()
		},
	}
	root.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
