package main

import (
	"os"

	"github.com/xraph/factor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
