// pxflut serves a shared Pixelflut canvas to many concurrent clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pxflut/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pxflut: %v\n", err)
		os.Exit(1)
	}
}
