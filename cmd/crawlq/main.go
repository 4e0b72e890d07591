package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"crawlq/internal/queue"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			reportError(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, err)
	if errors.Is(err, queue.ErrStorageUnavailable) {
		fmt.Fprintln(w, "The queue database could not be opened. Check paths.data_dir in the configuration and its permissions, or run `crawlq queue health`.")
	}
}
