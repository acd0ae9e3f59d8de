package main

import (
	"os"

	"github.com/FACorreiaa/deposit-recon/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
