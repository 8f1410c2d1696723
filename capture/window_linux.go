//go:build linux

package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// WindowGrabber reads frames from one X11 window's drawable, so the stream
// follows the window when it moves.
type WindowGrabber struct {
	conn    *xgb.Conn
	win     xproto.Window
	formats []xproto.Format
	once    sync.Once
}

func NewWindowGrabber(xid uint32) (*WindowGrabber, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWindowGrab, err)
	}
	setup := xproto.Setup(conn)
	if setup.ImageByteOrder != xproto.ImageOrderLSBFirst {
		conn.Close()
		return nil, fmt.Errorf("%w: MSB-first image byte order", ErrWindowGrab)
	}
	return &WindowGrabber{conn: conn, win: xproto.Window(xid), formats: setup.PixmapFormats}, nil
}

// Grab captures the window at the size of r. The origin of r is ignored.
func (g *WindowGrabber) Grab(r image.Rectangle) (*image.RGBA, error) {
	geom, err := xproto.GetGeometry(g.conn, xproto.Drawable(g.win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("window geometry: %w", err)
	}
	if !g.supports(geom.Depth) {
		return nil, fmt.Errorf("%w: depth %d is not 32 bits per pixel", ErrWindowGrab, geom.Depth)
	}
	w := min(r.Dx(), int(geom.Width))
	h := min(r.Dy(), int(geom.Height))
	if w <= 0 || h <= 0 {
		return nil, ErrNoFrame
	}
	reply, err := xproto.GetImage(g.conn, xproto.ImageFormatZPixmap, xproto.Drawable(g.win),
		0, 0, uint16(w), uint16(h), 0xffffffff).Reply()
	if err != nil {
		return nil, fmt.Errorf("window image: %w", err)
	}
	return bgrxToRGBA(reply.Data, w, h)
}

func (g *WindowGrabber) supports(depth byte) bool {
	for _, f := range g.formats {
		if f.Depth == depth {
			return f.BitsPerPixel == 32
		}
	}
	return false
}

func (g *WindowGrabber) Close() error {
	g.once.Do(g.conn.Close)
	return nil
}
