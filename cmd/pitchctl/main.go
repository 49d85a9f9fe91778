package main

import (
	"os"

	"github.com/kapu/pitch-coach-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
