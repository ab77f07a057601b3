package main

import (
	"context"
	"os"

	mcpadapter "github.com/kirillkom/safety-report-retrieval/internal/adapters/mcp"
	"github.com/kirillkom/safety-report-retrieval/internal/bootstrap"
	"github.com/kirillkom/safety-report-retrieval/internal/config"
	"github.com/kirillkom/safety-report-retrieval/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the MCP stdio protocol.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg, logger, bootstrap.WithService("mcp"))
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := mcpadapter.NewServer(app.Search, version, logger).ServeStdio(); err != nil {
		logger.Error("mcp server stopped", "error", err)
		app.Close()
		os.Exit(1)
	}
}
