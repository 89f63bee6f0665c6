package main

import (
	"os"

	"github.com/gitwarden/gitwarden/cmd/gitwarden/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
