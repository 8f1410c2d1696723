//go:build !linux

package capture

import (
	"fmt"
	"image"
)

// WindowGrabber is only backed by X11.
type WindowGrabber struct{}

func NewWindowGrabber(xid uint32) (*WindowGrabber, error) {
	return nil, fmt.Errorf("%w: window %d", ErrWindowGrab, xid)
}

func (*WindowGrabber) Grab(image.Rectangle) (*image.RGBA, error) { return nil, ErrWindowGrab }

func (*WindowGrabber) Close() error { return nil }
