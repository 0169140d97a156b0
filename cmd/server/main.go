package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"j1-query-mcp/internal/config"
	"j1-query-mcp/internal/jupiterone"
	"j1-query-mcp/internal/logging"
	"j1-query-mcp/internal/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, &mcp.StdioTransport{})
	stop()

	if err != nil {
		// Stdout belongs to the MCP transport.
		fmt.Fprintf(os.Stderr, "jupiterone: %v\n", err)
		os.Exit(1)
	}
}

// run serves the relay on transport until it closes or ctx is done. A
// configuration error is returned before the transport is touched.
func run(ctx context.Context, transport mcp.Transport) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("unable to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    relay.ServerName,
		Version: relay.ServerVersion,
	}, nil)

	client := jupiterone.NewClient(cfg.Endpoint, cfg.APIKey, cfg.AccountID, cfg.Timeout)
	svc := relay.NewService(client, logger)
	svc.AddTools(server)

	logger.Info("starting MCP server", zap.Object("config", cfg))
	if err := server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		logger.Error("server failed", zap.Error(err))
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
