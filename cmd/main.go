package main

import (
	"os"

	"github.com/Sixtor24/Spanish-Blitz-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
