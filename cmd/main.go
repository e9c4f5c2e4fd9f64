package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"codesage/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.ConfigureLogging(os.Stderr, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, os.Args[1:], cli.DefaultDeps())
	stop()
	os.Exit(code)
}
