package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robalyx/bgcheck/cmd/bgcheck/commands"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := commands.Root(&commands.CLIDependencies{Output: os.Stdout, Progress: os.Stderr})

	return app.Run(ctx, os.Args)
}
