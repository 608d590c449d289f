package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/edwinsyarief/sekai/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands print their own failures. Errors raised by cobra itself,
		// such as unknown flags, are not ExitErrors.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(exitErr.Code)
	}
}
