package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a run error to spec.md §6's exit code contract: 0 on a
// clean run (handled by cobra before we get here), 1 on a fatal
// configuration/runtime error, 2 if the run was interrupted.
func exitCodeFor(err error) int {
	if errors.Is(err, context.Canceled) {
		return 2
	}
	return 1
}
