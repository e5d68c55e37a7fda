package main

import (
	"os"

	"github.com/rencie-dev/rencie/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
