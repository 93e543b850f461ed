package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	rtdebug "runtime/debug"
	"strings"
	"syscall"

	"github.com/BadgerOps/sdkupdate/internal/sdk"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			reportPanic(os.Stderr, r, rtdebug.Stack())
			code = 1
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer closeStore()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err, debug)
		return 1
	}
	return 0
}

// reportError prints err for the user. Failures from the known taxonomy
// get a one-line message; anything else is treated as a bug, and in
// verbose mode the whole wrap chain is printed with each error's type.
func reportError(w io.Writer, err error, verbose bool) {
	if sdk.IsKnown(err) {
		fmt.Fprintf(w, "Error: %s\n", err)
		return
	}
	fmt.Fprintf(w, "Abnormal program termination: %s\n", err)
	if verbose {
		fmt.Fprintln(w, "Error chain:")
		writeErrorChain(w, err, 1)
		return
	}
	fmt.Fprintln(w, "Run again in debug mode (-d option) for stack trace.")
}

// writeErrorChain prints err and everything it wraps, one error per line,
// indented by depth.
func writeErrorChain(w io.Writer, err error, depth int) {
	fmt.Fprintf(w, "%s%T: %s\n", strings.Repeat("  ", depth), err, err)

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if inner != nil {
				writeErrorChain(w, inner, depth+1)
			}
		}
	default:
		if inner := errors.Unwrap(err); inner != nil {
			writeErrorChain(w, inner, depth+1)
		}
	}
}

// reportPanic prints a recovered panic with the goroutine stack.
func reportPanic(w io.Writer, r any, stack []byte) {
	fmt.Fprintf(w, "Abnormal program termination: panic: %v\n%s", r, stack)
}
