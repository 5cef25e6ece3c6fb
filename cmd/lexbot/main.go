package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lex-bot-deploy/cmd/lexbot/commands"
)

// Set via ldflags.
var Version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := commands.Execute(ctx, Version); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
