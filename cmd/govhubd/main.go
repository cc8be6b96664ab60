// Package main is the entry point for the govhubd daemon: the governance
// hub with its event bus, topology registry, review pipeline and admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polisai/govhub/internal/adminapi"
	"github.com/polisai/govhub/pkg/compliance"
	"github.com/polisai/govhub/pkg/config"
	"github.com/polisai/govhub/pkg/eventbus"
	"github.com/polisai/govhub/pkg/governance"
	"github.com/polisai/govhub/pkg/hub"
	"github.com/polisai/govhub/pkg/logging"
	"github.com/polisai/govhub/pkg/policy"
	"github.com/polisai/govhub/pkg/registry"
	"github.com/polisai/govhub/pkg/review"
	"github.com/polisai/govhub/pkg/storage"
	"github.com/polisai/govhub/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	listenAddr := flag.String("listen", "", "Admin API listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	prettyLogs := flag.Bool("pretty", false, "Enable pretty console logging")
	flag.Parse()

	logger := logging.NewLogger(logging.Config{
		Level:  *logLevel,
		Pretty: *prettyLogs,
	})
	slog.SetDefault(logger)

	cfg, provider, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if provider != nil {
		defer func() {
			if err := provider.Close(); err != nil {
				logger.Error("Failed to close config provider", "error", err)
			}
		}()
	}
	if *listenAddr != "" {
		cfg.Server.AdminAddress = *listenAddr
	}

	logger.Info("Starting govhubd", "config", *configPath, "listen", cfg.Server.AdminAddress)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "govhubd",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	// Core components.
	metrics := telemetry.NewMetrics()
	bus := eventbus.New(
		eventbus.WithHistorySize(cfg.Bus.HistorySize),
		eventbus.WithLogger(logger),
		eventbus.WithMetrics(metrics),
	)
	reg := registry.New(logger)
	reviews := review.New(review.WithBus(bus), review.WithLogger(logger), review.WithMetrics(metrics))
	tracker := compliance.New(logger)

	gate, err := loadPolicyGate(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to load admission policy", "error", err)
		os.Exit(1)
	}

	manager := governance.New(reg, reviews, tracker, bus,
		governance.WithPolicyGate(gate),
		governance.WithMetrics(metrics),
		governance.WithLogger(logger),
	)

	bot := hub.New(bus, reg, hub.WithLogger(logger), hub.WithMetrics(metrics))
	if err := bot.Start(); err != nil {
		logger.Error("Failed to start hub bot", "error", err)
		os.Exit(1)
	}

	// Snapshot persistence.
	store, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to open snapshot store", "error", err)
		os.Exit(1)
	}
	if snap, err := store.Load(ctx); err != nil {
		logger.Error("Failed to load snapshot", "error", err)
		os.Exit(1)
	} else if snap != nil {
		manager.RestoreSnapshot(snap)
	}

	apiServer := adminapi.NewServer(adminapi.Config{
		Manager:  manager,
		Registry: reg,
		Tracker:  tracker,
		Reviews:  reviews,
		Bot:      bot,
		Metrics:  metrics,
		Logger:   logger,
	})

	server := &http.Server{
		Handler:      apiServer.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.AdminAddress)
	if err != nil {
		logger.Error("Failed to bind listener", "addr", cfg.Server.AdminAddress, "error", err)
		os.Exit(1)
	}
	logger.Info("Admin API listening", "addr", listener.Addr().String())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Storage.SaveInterval > 0 {
		g.Go(func() error {
			return saveLoop(gctx, manager, store, cfg.Storage.SaveInterval, logger)
		})
	}

	if provider != nil {
		g.Go(func() error {
			watchConfig(gctx, provider, gate, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err)
	}

	logger.Info("Shutting down")
	bot.Stop()
	bus.Close()

	// Final snapshot before exit.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Save(saveCtx, manager.Snapshot()); err != nil {
		logger.Error("Final snapshot save failed", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("Snapshot store close failed", "error", err)
	}
	if err := shutdownTelemetry(saveCtx); err != nil {
		logger.Error("Telemetry shutdown failed", "error", err)
	}
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, *config.FileProvider, error) {
	if path == "" {
		cfg, err := config.Load("")
		return cfg, nil, err
	}
	provider, err := config.NewFileProvider(path, logger)
	if err != nil {
		return nil, nil, err
	}
	return provider.Current(), provider, nil
}

func loadPolicyGate(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*policy.Gate, error) {
	modules, err := cfg.LoadPolicyModules()
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		logger.Info("Admission policy gate disabled")
		return nil, nil
	}
	gate, err := policy.NewGate(ctx, policy.GateOptions{
		Entrypoint: cfg.Policy.Entrypoint,
		Modules:    modules,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Admission policy gate loaded", "modules", len(modules))
	return gate, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.SnapshotFile == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewFileStore(cfg.Storage.SnapshotFile)
}

// watchConfig reloads the admission policy modules whenever the config file
// changes. Bus and server settings require a restart.
func watchConfig(ctx context.Context, provider *config.FileProvider, gate *policy.Gate, logger *slog.Logger) {
	updates := provider.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			if gate == nil {
				continue
			}
			modules, err := cfg.LoadPolicyModules()
			if err != nil {
				logger.Error("Failed to read policy modules", "error", err)
				continue
			}
			if len(modules) == 0 {
				continue
			}
			if err := gate.Reload(ctx, modules); err != nil {
				logger.Error("Policy reload failed, keeping previous modules", "error", err)
				continue
			}
			logger.Info("Admission policy reloaded", "modules", len(modules))
		}
	}
}

func saveLoop(ctx context.Context, manager *governance.Manager, store storage.Store, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := store.Save(saveCtx, manager.Snapshot())
			cancel()
			if err != nil {
				logger.Error("Periodic snapshot save failed", "error", err)
			}
		}
	}
}
