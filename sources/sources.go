// Package sources describes the capturable surfaces of the desktop: windows,
// screens and the physical displays behind them.
package sources

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	windowPrefix = "window:"
	screenPrefix = "screen:"

	// DesktopID identifies the synthesized source spanning every display.
	DesktopID = screenPrefix + "desktop:0"
)

var ErrInvalidID = errors.New("invalid capture source id")

// Kind distinguishes window sources from screen sources.
type Kind int

const (
	KindUnknown Kind = iota
	KindScreen
	KindWindow
)

func (k Kind) String() string {
	switch k {
	case KindScreen:
		return "screen"
	case KindWindow:
		return "window"
	default:
		return "unknown"
	}
}

// Rect is a rectangle in global desktop coordinates.
type Rect struct {
	X      int32
	Y      int32
	Width  int32
	Height int32
}

func RectFrom(r image.Rectangle) Rect {
	return Rect{X: int32(r.Min.X), Y: int32(r.Min.Y), Width: int32(r.Dx()), Height: int32(r.Dy())}
}

func (r Rect) Image() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height))
}

func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

type Size struct {
	Width  int32
	Height int32
}

// CaptureSource is one capturable window or screen.
type CaptureSource struct {
	ID        string
	Name      string
	Thumbnail []byte // PNG, may be empty
	Bounds    Rect
}

func (s CaptureSource) Kind() Kind {
	kind, _, err := ParseID(s.ID)
	if err != nil {
		return KindUnknown
	}
	return kind
}

func (s CaptureSource) IsWindow() bool { return strings.HasPrefix(s.ID, windowPrefix) }

func (s CaptureSource) IsScreen() bool { return strings.HasPrefix(s.ID, screenPrefix) }

// ThumbnailImage decodes the PNG thumbnail.
func (s CaptureSource) ThumbnailImage() (image.Image, error) {
	if len(s.Thumbnail) == 0 {
		return nil, fmt.Errorf("source %s has no thumbnail", s.ID)
	}
	return png.Decode(bytes.NewReader(s.Thumbnail))
}

// DisplayInfo describes one physical monitor.
type DisplayInfo struct {
	ID          int64
	Name        string
	Primary     bool
	Bounds      Rect
	Size        Size
	WorkArea    Rect
	ScaleFactor float64
}

func WindowID(xid uint32) string { return fmt.Sprintf("%s%d:0", windowPrefix, xid) }

func ScreenID(index int) string { return fmt.Sprintf("%s%d:0", screenPrefix, index) }

// ParseID splits an id of the form "<kind>:<handle>:<n>".
func ParseID(id string) (Kind, string, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[1] == "" {
		return KindUnknown, "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return KindUnknown, "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	switch parts[0] + ":" {
	case windowPrefix:
		return KindWindow, parts[1], nil
	case screenPrefix:
		return KindScreen, parts[1], nil
	default:
		return KindUnknown, "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
}

// WindowXID returns the X11 window id of a window source id.
func WindowXID(id string) (uint32, bool) {
	kind, handle, err := ParseID(id)
	if err != nil || kind != KindWindow {
		return 0, false
	}
	xid, err := strconv.ParseUint(handle, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(xid), true
}

// Windows keeps only window sources, preserving order.
func Windows(list []CaptureSource) []CaptureSource {
	return lo.Filter(list, func(s CaptureSource, _ int) bool { return s.IsWindow() })
}

// Screens keeps only screen sources, preserving order.
func Screens(list []CaptureSource) []CaptureSource {
	return lo.Filter(list, func(s CaptureSource, _ int) bool { return s.IsScreen() })
}

// DesktopSource synthesizes the single full-desktop source used whenever a
// monitor is picked. Its bounds are the union of all display bounds.
func DesktopSource(displays []DisplayInfo) CaptureSource {
	var union image.Rectangle
	for _, d := range displays {
		union = union.Union(d.Bounds.Image())
	}
	return CaptureSource{ID: DesktopID, Name: "Entire Desktop", Bounds: RectFrom(union)}
}

// PrimaryDisplay returns the display flagged primary.
func PrimaryDisplay(displays []DisplayInfo) (DisplayInfo, bool) {
	return lo.Find(displays, func(d DisplayInfo) bool { return d.Primary })
}
