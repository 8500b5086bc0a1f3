package main

import (
	"os"

	"github.com/ammar0144/ormresource/internal/cli"
)

func main() {
	if err := cli.Execute(nil); err != nil {
		os.Exit(1)
	}
}
