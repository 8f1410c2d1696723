package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go2tv.app/screenrec/sources"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 5 * time.Millisecond
)

var (
	notes    = sources.CaptureSource{ID: "window:101:0", Name: "Notes", Bounds: sources.Rect{Width: 800, Height: 600}}
	terminal = sources.CaptureSource{ID: "window:102:0", Name: "Terminal", Bounds: sources.Rect{Width: 640, Height: 480}}
	screen0  = sources.CaptureSource{ID: "screen:0:0", Name: "Screen 1", Bounds: sources.Rect{Width: 1920, Height: 1080}}
	display1 = sources.DisplayInfo{
		ID: 1, Name: "Display 1 (Primary)", Primary: true,
		Bounds: sources.Rect{Width: 1920, Height: 1080}, Size: sources.Size{Width: 1920, Height: 1080},
		WorkArea: sources.Rect{Width: 1920, Height: 1080}, ScaleFactor: 1,
	}
)

type reply[T any] struct {
	list []T
	err  error
	gate chan struct{}
}

type fakeHost struct {
	mu sync.Mutex

	sources  []sources.CaptureSource
	monitors []sources.DisplayInfo
	srcErr   error
	monErr   error
	// Per-call overrides, consumed in order.
	srcReplies []reply[sources.CaptureSource]
	monReplies []reply[sources.DisplayInfo]

	srcCalls int
	monCalls int
	starts   int
	cancels  int
	stops    [][]byte

	stopErr   error
	afterStop func(data []byte)
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		sources:  []sources.CaptureSource{screen0, notes, terminal},
		monitors: []sources.DisplayInfo{display1},
	}
}

func (h *fakeHost) Sources(ctx context.Context) ([]sources.CaptureSource, error) {
	h.mu.Lock()
	r := reply[sources.CaptureSource]{list: h.sources, err: h.srcErr}
	if h.srcCalls < len(h.srcReplies) {
		r = h.srcReplies[h.srcCalls]
	}
	h.srcCalls++
	h.mu.Unlock()
	return awaitReply(ctx, r)
}

func (h *fakeHost) Monitors(ctx context.Context) ([]sources.DisplayInfo, error) {
	h.mu.Lock()
	r := reply[sources.DisplayInfo]{list: h.monitors, err: h.monErr}
	if h.monCalls < len(h.monReplies) {
		r = h.monReplies[h.monCalls]
	}
	h.monCalls++
	h.mu.Unlock()
	return awaitReply(ctx, r)
}

func awaitReply[T any](ctx context.Context, r reply[T]) ([]T, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.list, r.err
}

func (h *fakeHost) StartRecording(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	return nil
}

func (h *fakeHost) StopRecording(_ context.Context, data []byte) error {
	h.mu.Lock()
	h.stops = append(h.stops, data)
	after, err := h.afterStop, h.stopErr
	h.mu.Unlock()
	if after != nil {
		go after(data)
	}
	return err
}

func (h *fakeHost) CancelRecording(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancels++
	return nil
}

func (h *fakeHost) counts() (src, mon, starts, cancels, stops int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.srcCalls, h.monCalls, h.starts, h.cancels, len(h.stops)
}

func (h *fakeHost) stopped() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.stops...)
}

type fakeStream struct {
	src    sources.CaptureSource
	closed atomic.Bool
}

func (s *fakeStream) Preview() image.Image { return image.NewRGBA(image.Rect(0, 0, 2, 2)) }

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	err     error
	gates   []chan struct{}
	opened  []*fakeStream
	targets []sources.CaptureSource
}

func (o *fakeOpener) Open(ctx context.Context, src sources.CaptureSource) (Stream, error) {
	o.mu.Lock()
	idx := len(o.targets)
	o.targets = append(o.targets, src)
	var gate chan struct{}
	if idx < len(o.gates) {
		gate = o.gates[idx]
	}
	err := o.err
	o.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	s := &fakeStream{src: src}
	o.mu.Lock()
	o.opened = append(o.opened, s)
	o.mu.Unlock()
	return s, nil
}

func (o *fakeOpener) streams() []*fakeStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeStream(nil), o.opened...)
}

func (o *fakeOpener) openedTargets() []sources.CaptureSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]sources.CaptureSource(nil), o.targets...)
}

type fakeRun struct {
	onChunk  func([]byte)
	done     chan struct{}
	doneOnce sync.Once
	err      error
	stopErr  error
	closed   atomic.Bool
}

func (r *fakeRun) emit(b []byte) { r.onChunk(b) }

func (r *fakeRun) finish(err error) {
	r.doneOnce.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *fakeRun) Stop(context.Context) error {
	r.finish(nil)
	return r.stopErr
}

func (r *fakeRun) Done() <-chan struct{} { return r.done }

func (r *fakeRun) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

func (r *fakeRun) Close() error {
	r.closed.Store(true)
	r.finish(errors.New("killed"))
	return nil
}

type fakeEncoder struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	runs     []*fakeRun
}

func (e *fakeEncoder) Start(_ Stream, onChunk func([]byte)) (EncoderRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return nil, e.startErr
	}
	r := &fakeRun{onChunk: onChunk, done: make(chan struct{}), stopErr: e.stopErr}
	e.runs = append(e.runs, r)
	return r, nil
}

func (e *fakeEncoder) started() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

func (e *fakeEncoder) last() *fakeRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.runs) == 0 {
		return nil
	}
	return e.runs[len(e.runs)-1]
}

// syncBuffer collects log output written from the loop goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	c    *Controller
	host *fakeHost
	open *fakeOpener
	enc  *fakeEncoder
	logs *syncBuffer
}

func newHarness(t *testing.T, host *fakeHost) *harness {
	t.Helper()
	return newHarnessWith(t, host, nil)
}

// newHarnessWith lets a test adjust the controller options before start.
func newHarnessWith(t *testing.T, host *fakeHost, adjust func(*Options)) *harness {
	t.Helper()
	if host == nil {
		host = newFakeHost()
	}
	h := &harness{host: host, open: &fakeOpener{}, enc: &fakeEncoder{}, logs: &syncBuffer{}}
	logger := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts := &Options{Host: host, Opener: h.open, Encoder: h.enc, Logger: logger, CallTimeout: 5 * time.Second}
	if adjust != nil {
		adjust(opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	h.c = c
	return h
}

// waitFor blocks until the published snapshot satisfies cond.
func (h *harness) waitFor(t *testing.T, cond func(Snapshot) bool, msg string) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.c.Snapshot()) }, waitTimeout, waitTick, msg)
	return h.c.Snapshot()
}

// barrier waits until every event posted before it has been handled, by
// toggling the host recording indicator and waiting for it to show.
func (h *harness) barrier(t *testing.T) Snapshot {
	t.Helper()
	want := !h.c.Snapshot().HostRecording
	h.c.NotifyRecordingStatus(want)
	return h.waitFor(t, func(s Snapshot) bool { return s.HostRecording == want }, "barrier")
}

func (h *harness) loaded(t *testing.T) Snapshot {
	t.Helper()
	h.c.Refresh()
	return h.waitFor(t, func(s Snapshot) bool {
		return s.WindowsVersion > 0 && s.MonitorsVersion > 0
	}, "lists loaded")
}

func (h *harness) previewing(t *testing.T) Snapshot {
	t.Helper()
	return h.waitFor(t, func(s Snapshot) bool { return s.State == StatePreviewing && s.HasStream }, "previewing")
}

func (h *harness) recording(t *testing.T) *fakeRun {
	t.Helper()
	h.c.Start()
	h.waitFor(t, func(s Snapshot) bool { return s.State == StateRecording }, "recording")
	run := h.enc.last()
	require.NotNil(t, run)
	return run
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
