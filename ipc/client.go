package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/godbus/dbus/v5"

	"go2tv.app/screenrec/internal/apis"
	"go2tv.app/screenrec/sources"
)

const (
	// maxPayload keeps stop-recording under the 64 MiB array limit of the
	// dbus wire encoder.
	maxPayload       = 1<<26 - 64<<10
	eventBufferSize  = 16
	dialPollInterval = 250 * time.Millisecond
)

var (
	ErrPayloadTooLarge = errors.New("recording too large for the session bus")
	ErrHostUnavailable = errors.New("host service not on the bus")
)

type ClientOptions struct {
	BusName string
	Logger  *slog.Logger
}

// Client talks to an exported host service. It implements session.Host.
type Client struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	logger *slog.Logger

	signals <-chan *dbus.Signal
	stop    func()
	events  chan Event
	done    chan struct{}
	exited  chan struct{}
	once    sync.Once
}

// Dial waits up to ctx's deadline for the host to claim its bus name, then
// returns a connected client.
func Dial(ctx context.Context, conn *dbus.Conn, options *ClientOptions) (*Client, error) {
	opts := normalizeClientOptions(options)
	err := retry.New(
		retry.Attempts(0),
		retry.Delay(dialPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		var owned bool
		call := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, opts.BusName)
		if err := call.Store(&owned); err != nil {
			return err
		}
		if !owned {
			return fmt.Errorf("%w: %s", ErrHostUnavailable, opts.BusName)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewClient(conn, &opts)
}

func NewClient(conn *dbus.Conn, options *ClientOptions) (*Client, error) {
	if conn == nil {
		return nil, errors.New("nil connection")
	}
	opts := normalizeClientOptions(options)
	signals, stop, err := apis.ListenOnSignal(conn, ObjectPath, Interface, "")
	if err != nil {
		return nil, fmt.Errorf("subscribe to host signals: %w", err)
	}
	c := &Client{
		conn:    conn,
		obj:     conn.Object(opts.BusName, ObjectPath),
		logger:  opts.Logger,
		signals: signals,
		stop:    stop,
		events:  make(chan Event, eventBufferSize),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

func normalizeClientOptions(options *ClientOptions) ClientOptions {
	opts := ClientOptions{}
	if options != nil {
		opts = *options
	}
	if opts.BusName == "" {
		opts.BusName = BusName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Events delivers host signals in arrival order. The channel is closed by
// Close.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) Sources(ctx context.Context) ([]sources.CaptureSource, error) {
	var wire []WireSource
	if err := c.obj.CallWithContext(ctx, Interface+"."+memberGetSources, 0).Store(&wire); err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}
	return fromWireSources(wire), nil
}

func (c *Client) Monitors(ctx context.Context) ([]sources.DisplayInfo, error) {
	var wire []WireMonitor
	if err := c.obj.CallWithContext(ctx, Interface+"."+memberGetMonitors, 0).Store(&wire); err != nil {
		return nil, fmt.Errorf("get monitors: %w", err)
	}
	return fromWireMonitors(wire), nil
}

func (c *Client) StartRecording(ctx context.Context) error {
	return c.call(ctx, memberStartRecording)
}

func (c *Client) StopRecording(ctx context.Context, data []byte) error {
	if len(data) > maxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}
	return c.call(ctx, memberStopRecording, data)
}

func (c *Client) CancelRecording(ctx context.Context) error {
	return c.call(ctx, memberCancelRecording)
}

// call waits for the host's reply so encode and delivery errors surface.
// The host methods return before any dialog opens.
func (c *Client) call(ctx context.Context, member string, args ...any) error {
	if err := c.obj.CallWithContext(ctx, Interface+"."+member, 0, args...).Err; err != nil {
		return fmt.Errorf("%s: %w", member, err)
	}
	return nil
}

func (c *Client) pump() {
	defer close(c.exited)
	defer close(c.events)
	for {
		select {
		case <-c.done:
			return
		case sig, ok := <-c.signals:
			if !ok {
				return
			}
			ev, ok, err := decodeSignal(sig)
			if err != nil {
				c.logger.Warn("malformed host signal", "signal", sig.Name, "err", err)
				continue
			}
			if !ok {
				continue
			}
			select {
			case c.events <- ev:
			case <-c.done:
				return
			}
		}
	}
}

// Close stops signal delivery. The connection stays open.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.stop()
		close(c.done)
	})
	<-c.exited
	return nil
}

// decodeSignal maps a bus signal to an Event. ok is false for signals that
// do not belong to the host interface.
func decodeSignal(sig *dbus.Signal) (Event, bool, error) {
	if sig == nil || sig.Path != ObjectPath || !strings.HasPrefix(sig.Name, Interface+".") {
		return Event{}, false, nil
	}
	switch strings.TrimPrefix(sig.Name, Interface+".") {
	case signalRecordingStatus:
		var recording bool
		if err := dbus.Store(sig.Body, &recording); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventRecordingStatus, Recording: recording}, true, nil
	case signalSaveStatus:
		var status SaveStatus
		if err := dbus.Store(sig.Body, &status); err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventSaveStatus, Save: status}, true, nil
	default:
		return Event{}, false, nil
	}
}
