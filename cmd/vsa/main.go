package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"vistara-analytics/internal/command"
	verrors "vistara-analytics/pkg/errors"
)

const (
	exitConfig = -1
	exitFatal  = 2
	exitError  = 1
)

func main() {
	rootCmd, err := command.NewRootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitError)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

// report prints err and returns the process exit code: -1 for an invalid
// fleet descriptor, 2 for other errors that stop the run (allocation, card
// acquisition) and 1 for everything else, such as bad flags.
func report(w io.Writer, err error) int {
	fmt.Fprintf(w, "%v\n", err)

	var cfgErr *verrors.ConfigurationError
	if errors.As(err, &cfgErr) {
		fmt.Fprintf(w, "ERROR: %s config error, please check!\n", cfgErr.Path)

		return exitConfig
	}

	if verrors.IsFatal(err) {
		return exitFatal
	}

	return exitError
}
