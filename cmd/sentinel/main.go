// Package main is the entry point for the sentinel binary.
package main

import (
	"os"

	"github.com/onnwee/sentinel/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
