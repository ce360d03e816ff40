package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/yamadera/torii/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands render their own failure output before returning an
		// ExitError. Anything else is a flag or usage error cobra was
		// told to silence, so surface it here.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
