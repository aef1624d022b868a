package main

import (
	"os"

	"github.com/bianoble/sitepipe/cmd/sitepipe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
