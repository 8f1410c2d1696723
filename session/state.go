package session

import (
	"fmt"

	"go2tv.app/screenrec/sources"
)

type State int

const (
	StateIdle State = iota
	StateSourceListed
	StatePreviewing
	StateRecording
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSourceListed:
		return "source_listed"
	case StatePreviewing:
		return "previewing"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// busy reports whether selection-affecting actions are refused.
func (s State) busy() bool { return s == StateRecording || s == StateFinalizing }

type Tab int

const (
	TabWindows Tab = iota
	TabMonitors
)

func (t Tab) String() string {
	if t == TabMonitors {
		return "monitors"
	}
	return "windows"
}

// Controls tells the view which actions may fire.
type Controls struct {
	StartEnabled     bool
	StopEnabled      bool
	SelectionEnabled bool
}

// Snapshot is an immutable copy of the controller state. Its slices are
// shared between snapshots and must not be modified.
type Snapshot struct {
	State     State
	Tab       Tab
	Status    string
	Selection Selection
	Controls  Controls

	Windows         []sources.CaptureSource
	WindowsVersion  uint64
	Monitors        []sources.DisplayInfo
	MonitorsVersion uint64

	HasStream     bool
	HostRecording bool
	RecordingID   string
	RecordedBytes int64
}
