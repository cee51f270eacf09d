// Command paged-proxy dereferences paged collections over HTTP.
//
// serve runs an HTTP server streaming the records of a page chain as NDJSON;
// fetch dereferences URLs from the command line. Both share the cached,
// rate limited client of pkg/client when a Redis address is configured.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
