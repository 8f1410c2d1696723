package sources

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/kbinani/screenshot"
	"golang.org/x/sync/errgroup"
)

const defaultThumbnailSize = 150

// Window is a raw top-level window reported by the window system.
type Window struct {
	XID    uint32
	Title  string
	Bounds Rect
}

// WindowLister enumerates top-level application windows.
type WindowLister interface {
	Windows(ctx context.Context) ([]Window, error)
}

// DisplayProvider reports the active displays.
type DisplayProvider interface {
	NumDisplays() int
	DisplayBounds(index int) image.Rectangle
}

// Grabber captures a screen rectangle.
type Grabber func(r image.Rectangle) (*image.RGBA, error)

type EnumeratorOptions struct {
	Windows       WindowLister
	Displays      DisplayProvider
	Grab          Grabber
	ThumbnailSize int
	Logger        *slog.Logger
}

// Enumerator lists capture sources and displays of the local desktop.
type Enumerator struct {
	windows   WindowLister
	displays  DisplayProvider
	grab      Grabber
	thumbSize int
	logger    *slog.Logger
}

func NewEnumerator(options *EnumeratorOptions) *Enumerator {
	opts := EnumeratorOptions{}
	if options != nil {
		opts = *options
	}
	if opts.Windows == nil {
		opts.Windows = NewWindowLister()
	}
	if opts.Displays == nil {
		opts.Displays = ScreenshotDisplays{}
	}
	if opts.Grab == nil {
		opts.Grab = screenshot.CaptureRect
	}
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = defaultThumbnailSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Enumerator{
		windows:   opts.Windows,
		displays:  opts.Displays,
		grab:      opts.Grab,
		thumbSize: opts.ThumbnailSize,
		logger:    opts.Logger,
	}
}

// Displays returns every active display. Exactly one entry is primary: the
// display containing the desktop origin, or the first one.
func (e *Enumerator) Displays(ctx context.Context) ([]DisplayInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := e.displays.NumDisplays()
	out := make([]DisplayInfo, 0, n)
	primary := 0
	for i := 0; i < n; i++ {
		b := e.displays.DisplayBounds(i)
		if image.Pt(0, 0).In(b) {
			primary = i
			break
		}
	}
	for i := 0; i < n; i++ {
		b := e.displays.DisplayBounds(i)
		id := int64(i + 1)
		name := fmt.Sprintf("Display %d", id)
		if i == primary {
			name += " (Primary)"
		}
		r := RectFrom(b)
		out = append(out, DisplayInfo{
			ID:      id,
			Name:    name,
			Primary: i == primary,
			Bounds:  r,
			Size:    Size{Width: r.Width, Height: r.Height},
			// Per-display work areas are not exposed by the grabber.
			WorkArea:    r,
			ScaleFactor: 1,
		})
	}
	return out, nil
}

// Sources returns screens followed by windows, each with a thumbnail.
func (e *Enumerator) Sources(ctx context.Context) ([]CaptureSource, error) {
	displays, err := e.Displays(ctx)
	if err != nil {
		return nil, err
	}
	windows, err := e.windows.Windows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}

	out := make([]CaptureSource, 0, len(displays)+len(windows))
	for i, d := range displays {
		out = append(out, CaptureSource{ID: ScreenID(i), Name: fmt.Sprintf("Screen %d", i+1), Bounds: d.Bounds})
	}
	for _, w := range windows {
		out = append(out, CaptureSource{ID: WindowID(w.XID), Name: w.Title, Bounds: w.Bounds})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range out {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			thumb, err := e.thumbnail(out[i].Bounds)
			if err != nil {
				e.logger.Debug("thumbnail skipped", "source_id", out[i].ID, "err", err)
				return nil
			}
			out[i].Thumbnail = thumb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Enumerator) thumbnail(r Rect) ([]byte, error) {
	if r.Empty() {
		return nil, fmt.Errorf("empty bounds")
	}
	img, err := e.grab(r.Image())
	if err != nil {
		return nil, err
	}
	return Thumbnail(img, e.thumbSize)
}

// Thumbnail scales img to fit a size x size box and encodes it as PNG.
func Thumbnail(img image.Image, size int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	if size <= 0 {
		size = defaultThumbnailSize
	}
	fitted := imaging.Fit(img, size, size, imaging.Lanczos)
	var buf bytes.Buffer
	if err := png.Encode(&buf, fitted); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ScreenshotDisplays reports displays through kbinani/screenshot.
type ScreenshotDisplays struct{}

func (ScreenshotDisplays) NumDisplays() int { return screenshot.NumActiveDisplays() }

func (ScreenshotDisplays) DisplayBounds(index int) image.Rectangle {
	return screenshot.GetDisplayBounds(index)
}
