// Package main is the entry point for the easyquote CLI.
package main

import (
	"os"

	"easyquote/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
