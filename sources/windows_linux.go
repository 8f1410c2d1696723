//go:build linux

package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// X11Windows lists managed top-level windows through the EWMH client list.
type X11Windows struct{}

func NewWindowLister() WindowLister { return X11Windows{} }

func (X11Windows) Windows(ctx context.Context) ([]Window, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}
	defer conn.Close()

	root := xproto.Setup(conn).DefaultScreen(conn).Root
	clientList, err := internAtom(conn, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	netName, err := internAtom(conn, "_NET_WM_NAME")
	if err != nil {
		return nil, err
	}

	clients, err := readClientList(clientList, func() (*xproto.GetPropertyReply, error) {
		return xproto.GetProperty(conn, false, root, clientList, xproto.AtomWindow, 0, 1<<16).Reply()
	})
	if err != nil {
		return nil, err
	}

	out := make([]Window, 0, len(clients))
	for _, win := range clients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		title := windowTitle(conn, win, netName)
		if title == "" {
			continue
		}
		bounds, err := windowBounds(conn, win, root)
		if err != nil || bounds.Empty() {
			continue
		}
		out = append(out, Window{XID: uint32(win), Title: title, Bounds: bounds})
	}
	return out, nil
}

// readClientList decodes _NET_CLIENT_LIST. A window manager without EWMH
// never interned the atom, which leaves no windows to list.
func readClientList(atom xproto.Atom, get func() (*xproto.GetPropertyReply, error)) ([]xproto.Window, error) {
	if atom == xproto.AtomNone {
		return nil, nil
	}
	reply, err := get()
	if err != nil {
		return nil, fmt.Errorf("read _NET_CLIENT_LIST: %w", err)
	}
	if reply == nil || reply.Format != 32 {
		return nil, nil
	}
	out := make([]xproto.Window, 0, len(reply.Value)/4)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		out = append(out, xproto.Window(xgb.Get32(reply.Value[i:])))
	}
	return out, nil
}

func internAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern %s: %w", name, err)
	}
	return reply.Atom, nil
}

func windowTitle(conn *xgb.Conn, win xproto.Window, netName xproto.Atom) string {
	if netName != 0 {
		reply, err := xproto.GetProperty(conn, false, win, netName, xproto.GetPropertyTypeAny, 0, 1024).Reply()
		if err == nil && len(reply.Value) > 0 {
			return strings.TrimSpace(string(reply.Value))
		}
	}
	reply, err := xproto.GetProperty(conn, false, win, xproto.AtomWmName, xproto.GetPropertyTypeAny, 0, 1024).Reply()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(reply.Value))
}

func windowBounds(conn *xgb.Conn, win, root xproto.Window) (Rect, error) {
	geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return Rect{}, err
	}
	pos, err := xproto.TranslateCoordinates(conn, win, root, 0, 0).Reply()
	if err != nil {
		return Rect{}, err
	}
	return Rect{X: int32(pos.DstX), Y: int32(pos.DstY), Width: int32(geom.Width), Height: int32(geom.Height)}, nil
}
