package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCodeError carries a non-default process exit status. A nil err exits
// silently.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints err unless it is a cancellation and returns the exit
// status to use.
func reportError(w io.Writer, err error) int {
	code := 1
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		code = exitErr.code
		if exitErr.err == nil {
			return code
		}
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, "Error:", err)
	}
	return code
}
