package main

import (
	"os"

	"github.com/iurnickita/gascontrol/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
