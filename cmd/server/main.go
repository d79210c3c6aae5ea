package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirasaad/remittance/infra/initializer"
	"github.com/amirasaad/remittance/pkg/app"
	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/webapi"
	log "github.com/charmbracelet/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	deps, cleanup, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer cleanup()

	a, err := app.New(deps, cfg)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	fiberApp := webapi.SetupApp(a)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("🟢 [START] Starting server",
			"env", cfg.Env,
			"address", addr,
			"scheme", cfg.Server.Scheme,
		)
		errCh <- fiberApp.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("Shutting down server")
	// In-flight webhooks get a chance to commit before the pool closes.
	return fiberApp.ShutdownWithTimeout(10 * time.Second)
}
