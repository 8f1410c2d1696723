package session

import (
	"errors"
	"fmt"

	"go2tv.app/screenrec/sources"
)

var ErrInvalidSelection = errors.New("invalid selection")

type Mode int

const (
	ModeNone Mode = iota
	ModeWindow
	ModeMonitor
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeWindow:
		return "window"
	case ModeMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Selection is the user's current pick: nothing, one window, or one monitor.
// The constructors make a window and a monitor unrepresentable together.
type Selection struct {
	mode    Mode
	window  sources.CaptureSource
	monitor int64
}

func NoSelection() Selection { return Selection{} }

func WindowSelection(src sources.CaptureSource) Selection {
	return Selection{mode: ModeWindow, window: src}
}

func MonitorSelection(id int64) Selection {
	return Selection{mode: ModeMonitor, monitor: id}
}

func (s Selection) Mode() Mode { return s.mode }

func (s Selection) Empty() bool { return s.mode == ModeNone }

func (s Selection) Window() (sources.CaptureSource, bool) {
	return s.window, s.mode == ModeWindow
}

func (s Selection) Monitor() (int64, bool) {
	return s.monitor, s.mode == ModeMonitor
}

// Validate reports a selection holding state for a mode it is not in.
func (s Selection) Validate() error {
	hasWindow := s.window.ID != ""
	hasMonitor := s.monitor != 0
	switch s.mode {
	case ModeNone:
		if hasWindow || hasMonitor {
			return fmt.Errorf("%w: empty selection carries a source", ErrInvalidSelection)
		}
	case ModeWindow:
		if !hasWindow || hasMonitor {
			return fmt.Errorf("%w: window selection must hold exactly one window", ErrInvalidSelection)
		}
	case ModeMonitor:
		if hasWindow {
			return fmt.Errorf("%w: window and monitor selected together", ErrInvalidSelection)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidSelection, s.mode)
	}
	return nil
}
