package main

import (
	"os"

	"github.com/ovenworks/banneton/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
