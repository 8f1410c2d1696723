package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/encoder"
	"go2tv.app/screenrec/ipc"
	"go2tv.app/screenrec/session"
	"go2tv.app/screenrec/sources"
)

var ErrForeignStream = errors.New("stream was not opened by the capture opener")

// CaptureOpener opens capture streams for the session controller. Window
// sources read the window itself when the display server allows it and
// fall back to grabbing the screen area the window covered when listed.
type CaptureOpener struct {
	FrameRate int
	Grab      capture.GrabFunc
	Logger    *slog.Logger
}

func (o CaptureOpener) Open(ctx context.Context, src sources.CaptureSource) (session.Stream, error) {
	if src.Bounds.Empty() {
		return nil, fmt.Errorf("source %s has no visible area", src.ID)
	}
	opts := &capture.Options{FrameRate: o.FrameRate, Grab: o.Grab}
	if xid, ok := sources.WindowXID(src.ID); ok && o.Grab == nil {
		wg, err := capture.NewWindowGrabber(xid)
		if err == nil {
			opts.Grab, opts.Release = wg.Grab, wg.Close
		} else if o.Logger != nil {
			o.Logger.Debug("window grab unavailable, using screen area", "source_id", src.ID, "err", err)
		}
	}
	target := capture.Target{ID: src.ID, Bounds: src.Bounds.Image()}
	s, err := capture.Open(ctx, target, opts)
	if err != nil && opts.Release != nil {
		_ = opts.Release()
		if ctx.Err() != nil {
			return nil, err
		}
		if o.Logger != nil {
			o.Logger.Debug("window grab failed, using screen area", "source_id", src.ID, "err", err)
		}
		s, err = capture.Open(ctx, target, &capture.Options{FrameRate: o.FrameRate})
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Recorder feeds a capture stream into an ffmpeg encoder.
type Recorder struct {
	Encoder *encoder.Encoder
}

func (r Recorder) Start(stream session.Stream, onChunk func([]byte)) (session.EncoderRun, error) {
	s, ok := stream.(*capture.Stream)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrForeignStream, stream)
	}
	frames, err := s.Attach()
	if err != nil {
		return nil, err
	}
	run, err := r.Encoder.Start(encoder.Input{
		Frames:      frames,
		Width:       s.Width,
		Height:      s.Height,
		FrameRate:   s.FrameRate,
		PixelFormat: s.PixelFormat,
	}, onChunk)
	if err != nil {
		_ = frames.Close()
		return nil, err
	}
	return run, nil
}

// Notifiable receives host events.
type Notifiable interface {
	NotifyRecordingStatus(recording bool)
	NotifySaveStatus(res session.SaveResult)
}

// PumpEvents forwards host signals to n until events is closed or ctx ends.
func PumpEvents(ctx context.Context, events <-chan ipc.Event, n Notifiable) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case ipc.EventRecordingStatus:
				n.NotifyRecordingStatus(ev.Recording)
			case ipc.EventSaveStatus:
				n.NotifySaveStatus(session.SaveResult{
					Success:   ev.Save.Success,
					Cancelled: ev.Save.Cancelled,
					Message:   ev.Save.Message,
					Path:      ev.Save.FilePath,
				})
			}
		}
	}
}
