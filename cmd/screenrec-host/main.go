// Command screenrec-host owns the bus name and serves capture sources, the
// recording notice and the save dialog to the recorder UI.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenrec/app"
	"go2tv.app/screenrec/config"
	"go2tv.app/screenrec/internal/logging"
)

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger, closeLog, err := logging.New(logging.Options{Format: cfg.LogFormat, Debug: cfg.Debug, DebugFile: cfg.DebugFile})
	if err != nil {
		bootLogger.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("host failed", "err", err)
		stop()
		_ = closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	hc, err := app.BuildHost(cfg, logger, conn)
	if err != nil {
		return err
	}
	if err := hc.Server.Export(); err != nil {
		return err
	}
	defer func() {
		if err := hc.Server.Close(); err != nil {
			logger.Warn("host shutdown", "err", err)
		}
	}()
	logger.Info("host ready", "bus_name", cfg.BusName)

	if cfg.LaunchUI != "" {
		return app.LaunchUI(ctx, cfg.LaunchUI, logger)
	}
	<-ctx.Done()
	logger.Info("host stopping")
	return nil
}
