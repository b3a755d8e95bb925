// Command bakare is a deduplicating, versioning, content-addressed file
// backup engine.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/kolpa/bakare/internal/cli"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	os.Exit(cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, os.Environ(), sigCh))
}
