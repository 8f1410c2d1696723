//go:build !linux

package sources

import "context"

type noWindows struct{}

// NewWindowLister returns a lister that reports no windows. Only X11 window
// enumeration is implemented.
func NewWindowLister() WindowLister { return noWindows{} }

func (noWindows) Windows(context.Context) ([]Window, error) { return nil, nil }
