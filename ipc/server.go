package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"go2tv.app/screenrec/host"
)

var ErrNameTaken = errors.New("bus name already owned")

type ServerOptions struct {
	BusName string
	Logger  *slog.Logger
}

// Server exports a host.Service on the session bus and relays its
// notifications as signals.
type Server struct {
	conn    *dbus.Conn
	svc     *host.Service
	logger  *slog.Logger
	busName string
	obj     *hostObject

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewServer(conn *dbus.Conn, svc *host.Service, options *ServerOptions) (*Server, error) {
	if conn == nil || svc == nil {
		return nil, errors.New("connection and service are required")
	}
	opts := ServerOptions{}
	if options != nil {
		opts = *options
	}
	if opts.BusName == "" {
		opts.BusName = BusName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		conn:    conn,
		svc:     svc,
		logger:  opts.Logger,
		busName: opts.BusName,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.obj = &hostObject{svc: svc, logger: opts.Logger, ctx: ctx, wg: &s.wg}
	return s, nil
}

// Export publishes the object, claims the bus name and routes the service's
// notifications through this server.
func (s *Server) Export() error {
	if err := s.conn.Export(s.obj, ObjectPath, Interface); err != nil {
		return fmt.Errorf("export host object: %w", err)
	}
	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: introspect.Methods(s.obj),
				Signals: []introspect.Signal{
					{Name: signalRecordingStatus, Args: []introspect.Arg{{Name: "recording", Type: "b"}}},
					{Name: signalSaveStatus, Args: []introspect.Arg{{Name: "status", Type: "(bbss)"}}},
				},
			},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := s.conn.RequestName(s.busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name %s: %w", s.busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%w: %s", ErrNameTaken, s.busName)
	}
	s.svc.SetNotifier(s)
	s.logger.Info("host service exported", "bus_name", s.busName, "path", string(ObjectPath))
	return nil
}

func (s *Server) RecordingStatus(recording bool) {
	s.emit(signalRecordingStatus, recording)
}

func (s *Server) SaveStatus(outcome host.Outcome) {
	s.emit(signalSaveStatus, toSaveStatus(outcome))
}

func (s *Server) emit(member string, value any) {
	if err := s.conn.Emit(ObjectPath, Interface+"."+member, value); err != nil {
		s.logger.Warn("emit signal failed", "signal", member, "err", err)
	}
}

// Wait blocks until in-flight stop-recording requests have finished.
func (s *Server) Wait() { s.wg.Wait() }

// Close withdraws the object and the bus name. Pending save dialogs are
// cancelled and awaited.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.svc.SetNotifier(nil)
		s.cancel()
		s.wg.Wait()
		var errs []error
		if e := s.conn.Export(nil, ObjectPath, Interface); e != nil {
			errs = append(errs, e)
		}
		if e := s.conn.Export(nil, ObjectPath, "org.freedesktop.DBus.Introspectable"); e != nil {
			errs = append(errs, e)
		}
		if _, e := s.conn.ReleaseName(s.busName); e != nil {
			errs = append(errs, e)
		}
		err = errors.Join(errs...)
	})
	return err
}

// hostObject holds the exported methods. Only methods returning *dbus.Error
// are visible on the bus.
type hostObject struct {
	svc    *host.Service
	logger *slog.Logger
	ctx    context.Context
	wg     *sync.WaitGroup
}

func (o *hostObject) GetSources() ([]WireSource, *dbus.Error) {
	list, err := o.svc.EnumerateSources(o.ctx)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return toWireSources(list), nil
}

func (o *hostObject) GetMonitors() ([]WireMonitor, *dbus.Error) {
	list, err := o.svc.EnumerateDisplays(o.ctx)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return toWireMonitors(list), nil
}

func (o *hostObject) StartRecording() *dbus.Error {
	o.svc.BeginRecordingNotice()
	return nil
}

// StopRecording returns at once; the dialog and the write run in the
// background and report through the save-status signal.
func (o *hostObject) StopRecording(data []byte) *dbus.Error {
	if o.ctx.Err() != nil {
		return dbus.MakeFailedError(errors.New("host is shutting down"))
	}
	o.logger.Debug("stop-recording received", "bytes", len(data))
	o.wg.Go(func() {
		o.svc.StopRecording(o.ctx, data)
	})
	return nil
}

func (o *hostObject) CancelRecording() *dbus.Error {
	o.svc.CancelRecording()
	return nil
}
