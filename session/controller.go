// Package session implements the recorder's selection and recording state
// machine. A Controller owns the current selection, the live capture stream
// and the recorded chunks; every mutation happens on its event loop.
package session

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"go2tv.app/screenrec/sources"
)

var ErrClosed = errors.New("session controller closed")

const (
	defaultCallTimeout = 30 * time.Second
	defaultStopTimeout = 30 * time.Second
	defaultSaveTimeout = 10 * time.Minute
	eventQueueSize     = 64
)

// Host is the privileged service the controller talks to.
type Host interface {
	Sources(ctx context.Context) ([]sources.CaptureSource, error)
	Monitors(ctx context.Context) ([]sources.DisplayInfo, error)
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context, data []byte) error
	CancelRecording(ctx context.Context) error
}

// Stream is a live capture bound to one source.
type Stream interface {
	Preview() image.Image
	Close() error
}

type StreamOpener interface {
	Open(ctx context.Context, src sources.CaptureSource) (Stream, error)
}

// Encoder starts recording a stream. onChunk is called from a single
// goroutine with each non-empty encoded chunk, in order.
type Encoder interface {
	Start(stream Stream, onChunk func([]byte)) (EncoderRun, error)
}

// EncoderRun is one running encode. Done is closed after the last chunk was
// delivered; Err is valid afterwards.
type EncoderRun interface {
	Stop(ctx context.Context) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// SaveResult mirrors the host's save-status event.
type SaveResult struct {
	Success   bool
	Cancelled bool
	Message   string
	Path      string
}

type Options struct {
	Host    Host
	Opener  StreamOpener
	Encoder Encoder
	Logger  *slog.Logger
	// CallTimeout bounds each host request.
	CallTimeout time.Duration
	// StopTimeout bounds encoder finalization.
	StopTimeout time.Duration
	// SaveTimeout bounds the wait for save-status once the host accepted
	// the recording. It covers the time the save dialog is open.
	SaveTimeout time.Duration
}

type Listener func(Snapshot)

type Controller struct {
	host    Host
	opener  StreamOpener
	encoder Encoder
	logger  *slog.Logger

	callTimeout time.Duration
	stopTimeout time.Duration
	saveTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	exited chan struct{}
	once   sync.Once

	// Owned by the loop goroutine.
	state     State
	tab       Tab
	status    string
	selection Selection
	windows   []sources.CaptureSource
	monitors  []sources.DisplayInfo
	winVer    uint64
	monVer    uint64
	winLoaded bool
	monLoaded bool
	srcGen    uint64
	monGen    uint64
	selGen    uint64
	saveGen   uint64
	stream    Stream
	hostRec   bool
	rec       *recording

	mu        sync.RWMutex
	snap      Snapshot
	preview   Stream
	listeners []Listener
}

// recording is the in-flight RecordingSession.
type recording struct {
	id     string
	name   string
	run    EncoderRun
	chunks [][]byte
	bytes  int64
}

func New(options *Options) (*Controller, error) {
	if options == nil {
		return nil, errors.New("nil options")
	}
	opts := *options
	if opts.Host == nil || opts.Opener == nil || opts.Encoder == nil {
		return nil, errors.New("host, opener and encoder are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		host:        opts.Host,
		opener:      opts.Opener,
		encoder:     opts.Encoder,
		logger:      opts.Logger,
		callTimeout: opts.CallTimeout,
		stopTimeout: opts.StopTimeout,
		saveTimeout: opts.SaveTimeout,
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan event, eventQueueSize),
		exited:      make(chan struct{}),
	}
	c.publish()
	go c.loop()
	return c, nil
}

// Refresh reloads both the window list and the monitor list.
func (c *Controller) Refresh() { c.post(evRefresh{}) }

// SelectWindow picks the window with the given source id.
func (c *Controller) SelectWindow(id string) { c.post(evSelectWindow{id: id}) }

// SelectMonitor picks the display with the given id. An unknown id clears
// the selection.
func (c *Controller) SelectMonitor(id int64) { c.post(evSelectMonitor{id: id}) }

func (c *Controller) SwitchTab(tab Tab) { c.post(evSwitchTab{tab: tab}) }

func (c *Controller) Start() { c.post(evStart{}) }

func (c *Controller) Stop() { c.post(evStop{}) }

// NotifyRecordingStatus applies the host's recording-status event.
func (c *Controller) NotifyRecordingStatus(recording bool) {
	c.post(evRecordingStatus{recording: recording})
}

// NotifySaveStatus applies the host's save-status event.
func (c *Controller) NotifySaveStatus(res SaveResult) { c.post(evSaveStatus{res: res}) }

// Snapshot returns the state published after the last handled event.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Preview returns the latest frame of the live stream, if any.
func (c *Controller) Preview() image.Image {
	c.mu.RLock()
	s := c.preview
	c.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.Preview()
}

// AddListener registers fn to receive every published snapshot. fn runs on
// the event loop and must not block.
func (c *Controller) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Close stops the loop, the encoder and the stream. Recorded chunks that
// were not handed off are discarded. Later calls return ErrClosed.
func (c *Controller) Close() error {
	err := ErrClosed
	c.once.Do(func() {
		err = nil
		c.cancel()
	})
	<-c.exited
	return err
}

// post queues ev for the loop. It reports false once the controller is
// closed.
func (c *Controller) post(ev event) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.events <- ev:
		return true
	}
}

func (c *Controller) loop() {
	defer close(c.exited)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

func (c *Controller) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session event panic", "event", ev.name(), "panic", r)
		}
	}()
	c.handle(ev)
	if err := c.selection.Validate(); err != nil {
		c.logger.Error("selection invariant violated", "event", ev.name(), "err", err)
	}
	c.publish()
}

func (c *Controller) shutdown() {
	if c.rec != nil {
		if err := c.rec.run.Close(); err != nil {
			c.logger.Debug("encoder close", "recording_id", c.rec.id, "err", err)
		}
		c.rec = nil
	}
	c.closeStream()
	// Streams opened after the loop stopped still need closing.
	for {
		select {
		case ev := <-c.events:
			if so, ok := ev.(evStreamOpened); ok && so.stream != nil {
				_ = so.stream.Close()
			}
		default:
			c.publish()
			return
		}
	}
}

func (c *Controller) controls() Controls {
	return Controls{
		StartEnabled:     c.state == StatePreviewing && c.stream != nil && !c.selection.Empty(),
		StopEnabled:      c.state == StateRecording,
		SelectionEnabled: !c.state.busy(),
	}
}

func (c *Controller) publish() {
	snap := Snapshot{
		State:           c.state,
		Tab:             c.tab,
		Status:          c.status,
		Selection:       c.selection,
		Controls:        c.controls(),
		Windows:         c.windows,
		WindowsVersion:  c.winVer,
		Monitors:        c.monitors,
		MonitorsVersion: c.monVer,
		HasStream:       c.stream != nil,
		HostRecording:   c.hostRec,
	}
	if c.rec != nil {
		snap.RecordingID = c.rec.id
		snap.RecordedBytes = c.rec.bytes
	}

	c.mu.Lock()
	c.snap = snap
	c.preview = c.stream
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// callCtx derives a bounded context for one host request.
func (c *Controller) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, c.callTimeout)
}
