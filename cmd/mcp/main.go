package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/evidence-vault/internal/adapters/mcp"
	"github.com/kirillkom/evidence-vault/internal/bootstrap"
	"github.com/kirillkom/evidence-vault/internal/config"
	"github.com/kirillkom/evidence-vault/internal/observability/logging"
)

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.VaultUC, app.QueryUC, app.EvidenceUC, app.ReconcileUC, logger)
	if err := server.ServeStdio(tools.Server()); err != nil {
		logger.Error("mcp_server_error", "error", err)
	}
}
