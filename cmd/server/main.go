// Package main is the entry point for the easyquote line item server.
package main

import (
	"os"

	"easyquote/cmd/cli/cmd"
)

func main() {
	if err := cmd.ExecuteServer(); err != nil {
		os.Exit(1)
	}
}
