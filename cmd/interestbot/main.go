package main

import (
	"os"

	"github.com/m3rciful/interestbot/cmd/interestbot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
