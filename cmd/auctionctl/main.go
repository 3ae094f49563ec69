package main

import (
	"os"

	"github.com/velomarket/auction-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
