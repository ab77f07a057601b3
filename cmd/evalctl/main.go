package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/safety-report-retrieval/internal/adapters/cli"
	"github.com/kirillkom/safety-report-retrieval/internal/bootstrap"
	"github.com/kirillkom/safety-report-retrieval/internal/config"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
	"github.com/kirillkom/safety-report-retrieval/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "evalctl", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context, opts ...bootstrap.Option) (*bootstrap.App, error) {
		return bootstrap.New(ctx, cfg, logger, append([]bootstrap.Option{bootstrap.WithService("evalctl")}, opts...)...)
	}
	plan := func() (ports.QueryPlanner, error) {
		return bootstrap.NewPlanner(cfg)
	}
	if err := cli.NewRootCommand(open, plan).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
