// Command claude-work serves the session manager: projects, agent sessions
// in git worktrees, and the browser sockets that drive them.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
