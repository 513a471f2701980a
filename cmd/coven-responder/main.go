// ABOUTME: Entry point for coven-responder
// ABOUTME: Delegates to the cobra command tree in internal/cli

package main

import (
	"os"

	"github.com/2389/coven-responder/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
