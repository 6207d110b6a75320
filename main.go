package main

import (
	"os"

	"github.com/solenelabs/aria/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
