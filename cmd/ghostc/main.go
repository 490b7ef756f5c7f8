package main

import (
	"os"

	"github.com/ghostmsg/ghostcore/cmd/ghostc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
