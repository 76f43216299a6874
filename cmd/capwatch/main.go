package main

import (
	"os"

	"github.com/rustyeddy/capwatch/cmd/capwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
