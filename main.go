package main

import (
	"os"

	"github.com/harlan/vesper/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
