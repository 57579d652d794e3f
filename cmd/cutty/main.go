// Package main is the entry point for the cutty CLI application.
//
// The command tree lives in internal/cli; main only runs it and turns the
// outcome into an exit status.
package main

import (
	"os"

	"cutty/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
