package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/lumen/internal/api"
	"github.com/nugget/lumen/internal/buildinfo"
	"github.com/nugget/lumen/internal/config"
	"github.com/nugget/lumen/internal/connwatch"
	"github.com/nugget/lumen/internal/events"
	"github.com/nugget/lumen/internal/mqtt"
)

// runServe starts the API server and, when configured, the MQTT mirror.
// It blocks until SIGINT/SIGTERM or ctx cancellation.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting", "build", buildinfo.String())

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = cfg.Logger(stdout)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Agent.DefaultModel,
		"models", len(cfg.Models),
	)

	bus := events.New()
	a, err := buildApp(cfg, bus, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, a.driver, logger)
	server.SetTools(a.tools, cfg.ToolEnabled)
	server.SetEventBus(bus)
	server.SetHealthStore(a.health)
	if a.knowledge != nil {
		server.SetKnowledgeBag(a.knowledge)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- MQTT mirror ---
	var mirror *mqtt.Mirror
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}
		mirror = mqtt.New(cfg.MQTT, instanceID, bus, mqtt.NewDailyCounts(nil), a.driver, logger)
		go func() {
			if err := mirror.Start(ctx); err != nil {
				logger.Error("mqtt mirror failed", "error", err)
			}
		}()
		logger.Info("mqtt mirror enabled", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	} else {
		logger.Info("mqtt mirror disabled (not configured)")
	}

	// --- Backend health ---
	services := connwatch.NewManager(bus, logger)
	watchServices(ctx, services, cfg, mirror)
	defer services.Stop()
	server.SetServices(services)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		a.driver.Cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if mirror != nil {
			if err := mirror.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Lumen stopped")
	return nil
}
