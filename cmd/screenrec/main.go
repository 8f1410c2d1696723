// Command screenrec is the recorder window. It needs a running
// screenrec-host on the session bus.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenrec/app"
	"go2tv.app/screenrec/config"
	"go2tv.app/screenrec/internal/logging"
	"go2tv.app/screenrec/ui/presenter"
	"go2tv.app/screenrec/ui/view"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

const (
	title = "Screen Recorder"
	tick  = 66 * time.Millisecond
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
		logger.Error("recorder failed", "err", err)
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

	uc, err := app.BuildUI(ctx, cfg, logger, conn)
	if err != nil {
		return err
	}
	defer func() {
		if err := uc.Close(); err != nil {
			logger.Warn("recorder shutdown", "err", err)
		}
	}()

	go app.PumpEvents(ctx, uc.Client.Events(), uc.Controller)
	go func() { logger.Debug("encoder ready", "video", uc.Encoder.Prepare()) }()

	newWindow(ctx, uc, logger).start()
	return nil
}

// window drives the Tk main loop and polls the controller on a timer.
type window struct {
	ctx     context.Context
	ctrl    *app.UIContainer
	rv      *view.RootView
	pres    *presenter.Presenter
	afterID string
	closed  bool
}

func newWindow(ctx context.Context, uc *app.UIContainer, logger *slog.Logger) *window {
	rv := view.NewRootView(logger)
	return &window{ctx: ctx, ctrl: uc, rv: rv, pres: presenter.New(uc.Controller, rv)}
}

func (w *window) start() {
	c := w.ctrl.Controller
	w.rv.Build(title, view.Actions{
		Refresh:       c.Refresh,
		SwitchTab:     c.SwitchTab,
		SelectWindow:  c.SelectWindow,
		SelectMonitor: c.SelectMonitor,
		Start:         c.Start,
		Stop:          c.Stop,
		Exit:          w.exit,
	})
	c.Refresh()
	w.update()
	App.Wait()
}

func (w *window) update() {
	if w.ctx.Err() != nil {
		w.exit()
		return
	}
	w.pres.Tick()
	w.afterID = TclAfter(tick, w.update)
}

func (w *window) exit() {
	if w.closed {
		return
	}
	w.closed = true
	if w.afterID != "" {
		TclAfterCancel(w.afterID)
		w.afterID = ""
	}
	Destroy(App)
}
