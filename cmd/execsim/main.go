package main

import (
	"os"

	"github.com/rustyeddy/execsim/cmd/execsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
