// cmd/timeless/main.go
//
// Entry point for the timeless CLI. Everything interesting lives in
// internal/cli; main only wires the process to it.
//
// Flow:
// 1. Cancel the root context on SIGINT/SIGTERM so a running assistant
//    process is stopped with us
// 2. Hand the arguments to cli.Run and exit with its status

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingrea/timeless/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], cli.Env{})
	stop()
	os.Exit(code)
}
