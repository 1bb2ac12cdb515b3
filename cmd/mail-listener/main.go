package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"supplyrecon/internal/app"
	"supplyrecon/internal/config"
	"supplyrecon/internal/logx"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logx.Init(logx.Options{Environment: cfg.Environment, Level: cfg.LogLevel})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg)
	must(err)
	defer a.Close()

	if err := a.Listener().Run(ctx); err != nil {
		logx.Error().Err(err).Msg("mail listener")
	}
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
