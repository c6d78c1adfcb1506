package main

import (
	"os"

	"github.com/BatmanBruc/hub-sales-bot/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
