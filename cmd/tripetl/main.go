// Command tripetl downloads a taxi trip CSV, cleans it chunk by chunk and
// bulk-loads it into a relational table.
//
// Exit codes:
//
//	0  success (verification warnings included)
//	1  acquisition or other runtime failure
//	2  configuration error
package main

import (
	"errors"
	"fmt"
	"os"

	"tripetl/internal/pipeline"
	_ "tripetl/internal/storage/all"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tripetl: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrConfig):
		return exitConfig
	default:
		return exitFailure
	}
}
