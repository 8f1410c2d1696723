package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"

	"github.com/kbinani/screenshot"
)

const (
	// PixelFormatRGBA is the pixel layout of every frame handed to readers.
	PixelFormatRGBA = "RGBA"

	defaultFrameRate = 30
	maxFrameRate     = 60
)

var (
	ErrInvalidOptions = errors.New("invalid screen capture options")
	ErrNoFrame        = errors.New("screen capture produced no frame")
	ErrClosed         = errors.New("screen capture stream is closed")
	ErrAttached       = errors.New("screen capture stream already has a reader")
)

// GrabFunc captures one rectangle of the desktop.
type GrabFunc func(r image.Rectangle) (*image.RGBA, error)

// Target is the desktop region bound to a stream.
type Target struct {
	ID     string
	Bounds image.Rectangle
}

// Options configures a capture stream.
type Options struct {
	// FrameRate in frames per second. Default is 30.
	FrameRate int
	// QueueSize bounds frames buffered for a slow reader. Default is 4.
	QueueSize int
	// Grab overrides the screen grabber.
	Grab GrabFunc
	// Release runs once when the stream closes, after the last grab.
	Release func() error
}

// Stream is a live capture of one desktop region. It keeps grabbing frames
// for Preview until closed, and feeds raw RGBA frames to at most one attached
// reader at a time.
type Stream struct {
	SourceID    string
	Width       uint32
	Height      uint32
	FrameRate   uint32
	PixelFormat string

	g       *grabber
	release func() error

	mu       sync.Mutex
	attached *attachment

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open starts grabbing target and returns once the first frame is available.
func Open(ctx context.Context, target Target, options *Options) (*Stream, error) {
	opts, err := validateOpenOptions(target, options)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		SourceID:    target.ID,
		Width:       uint32(target.Bounds.Dx()),
		Height:      uint32(target.Bounds.Dy()),
		FrameRate:   uint32(opts.FrameRate),
		PixelFormat: PixelFormatRGBA,
		release:     opts.Release,
	}
	s.g = newGrabber(target, opts, s.deliver)

	ready := s.g.start()
	if err := waitForFirstFrame(ctx, target.ID, ready, s.Close); err != nil {
		return nil, err
	}
	if err := s.g.firstErr(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrNoFrame, target.ID, err)
	}
	captureDebug("stream opened", "source_id", target.ID, "width", s.Width, "height", s.Height, "fps", s.FrameRate)
	return s, nil
}

// Preview returns the most recent frame, or nil before the first grab.
func (s *Stream) Preview() image.Image {
	if s == nil || s.g == nil {
		return nil
	}
	f := s.g.latest.Load()
	if f == nil {
		return nil
	}
	return f
}

// FrameSize is the byte length of one frame.
func (s *Stream) FrameSize() int { return int(s.Width) * int(s.Height) * 4 }

// Attach returns a reader yielding whole RGBA frames from now on. Closing the
// reader detaches it; the stream keeps running.
func (s *Stream) Attach() (io.ReadCloser, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached != nil {
		return nil, ErrAttached
	}
	pr, pw := io.Pipe()
	a := &attachment{
		stream: s,
		pr:     pr,
		pw:     pw,
		writer: newAsyncPipeWriter(s.SourceID, "video", pw, s.g.queueSize),
	}
	s.attached = a
	return a, nil
}

func (s *Stream) deliver(frame []byte) {
	s.mu.Lock()
	a := s.attached
	s.mu.Unlock()
	if a != nil {
		a.writer.Enqueue(frame)
	}
}

func (s *Stream) detach(a *attachment) {
	s.mu.Lock()
	if s.attached == a {
		s.attached = nil
	}
	s.mu.Unlock()
}

// Close stops the grabber and ends any attached reader with io.EOF.
func (s *Stream) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.g.stop()
		s.mu.Lock()
		a := s.attached
		s.attached = nil
		s.mu.Unlock()
		if a != nil {
			s.closeErr = a.pw.CloseWithError(io.EOF)
			a.writer.Close()
		}
		if s.release != nil {
			s.closeErr = errors.Join(s.closeErr, s.release())
		}
		captureDebug("stream closed", "source_id", s.SourceID)
	})
	return s.closeErr
}

type attachment struct {
	stream *Stream
	pr     *io.PipeReader
	pw     *io.PipeWriter
	writer *asyncPipeWriter
	once   sync.Once
}

func (a *attachment) Read(p []byte) (int, error) { return a.pr.Read(p) }

func (a *attachment) Close() error {
	var err error
	a.once.Do(func() {
		a.stream.detach(a)
		// Unblock a pending write before waiting for the writer loop.
		err = errors.Join(a.pr.Close(), a.pw.Close())
		a.writer.Close()
	})
	return err
}

// ScreenGrab captures through kbinani/screenshot.
func ScreenGrab(r image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(r)
}
