// Package app assembles the host and UI processes from their parts.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/config"
	"go2tv.app/screenrec/encoder"
	"go2tv.app/screenrec/host"
	"go2tv.app/screenrec/ipc"
	"go2tv.app/screenrec/portal"
	"go2tv.app/screenrec/session"
	"go2tv.app/screenrec/sources"
)

const closeTimeout = 2 * time.Second

// HostContainer is the wired host process.
type HostContainer struct {
	Config  *config.Config
	Logger  *slog.Logger
	Service *host.Service
	Server  *ipc.Server
}

// BuildHost wires the enumerator, the portal save dialog and the bus server.
func BuildHost(cfg *config.Config, logger *slog.Logger, conn *dbus.Conn) (*HostContainer, error) {
	enum := sources.NewEnumerator(&sources.EnumeratorOptions{
		ThumbnailSize: cfg.ThumbnailSize,
		Logger:        logger,
	})
	svc, err := host.New(&host.Options{
		Enumerator:      enum,
		Dialog:          host.PortalDialog{Chooser: portal.NewFileChooser(conn)},
		Logger:          logger,
		DefaultFilename: cfg.DefaultFilename,
		SaveDir:         cfg.SaveDir,
	})
	if err != nil {
		return nil, fmt.Errorf("host service: %w", err)
	}
	srv, err := ipc.NewServer(conn, svc, &ipc.ServerOptions{BusName: cfg.BusName, Logger: logger})
	if err != nil {
		return nil, err
	}
	return &HostContainer{Config: cfg, Logger: logger, Service: svc, Server: srv}, nil
}

// UIContainer is the wired UI process.
type UIContainer struct {
	Config     *config.Config
	Logger     *slog.Logger
	Client     *ipc.Client
	Encoder    *encoder.Encoder
	Controller *session.Controller
}

// BuildUI connects to the host and wires the session controller to the
// capture, encoder and bus client.
func BuildUI(ctx context.Context, cfg *config.Config, logger *slog.Logger, conn *dbus.Conn) (*UIContainer, error) {
	capture.SetLogger(logger)
	encoder.SetLogger(logger)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	client, err := ipc.Dial(dialCtx, conn, &ipc.ClientOptions{BusName: cfg.BusName, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect to host: %w", err)
	}

	enc, err := encoder.New(&encoder.Options{FFmpegPath: cfg.PathToFFmpeg, DebugCommand: cfg.Debug})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	ctrl, err := session.New(&session.Options{
		Host:    client,
		Opener:  CaptureOpener{FrameRate: cfg.FrameRate, Logger: logger},
		Encoder: Recorder{Encoder: enc},
		Logger:  logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &UIContainer{
		Config:     cfg,
		Logger:     logger,
		Client:     client,
		Encoder:    enc,
		Controller: ctrl,
	}, nil
}

// Close stops the controller, then detaches the client. An unfinished
// recording is reported to the host as cancelled.
func (c *UIContainer) Close() error {
	var errs []error
	switch c.Controller.Snapshot().State {
	case session.StateRecording, session.StateFinalizing:
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := c.Client.CancelRecording(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if err := c.Controller.Close(); err != nil && !errors.Is(err, session.ErrClosed) {
		errs = append(errs, err)
	}
	if err := c.Client.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
