// Package ipc carries the host capability service over the D-Bus session
// bus. Server exports a host.Service; Client is the UI side.
package ipc

import (
	"github.com/godbus/dbus/v5"

	"go2tv.app/screenrec/host"
	"go2tv.app/screenrec/sources"
)

const (
	BusName    = "app.go2tv.ScreenRec"
	ObjectPath = dbus.ObjectPath("/app/go2tv/ScreenRec")
	Interface  = "app.go2tv.ScreenRec.Host"

	memberGetSources      = "GetSources"
	memberGetMonitors     = "GetMonitors"
	memberStartRecording  = "StartRecording"
	memberStopRecording   = "StopRecording"
	memberCancelRecording = "CancelRecording"

	signalRecordingStatus = "RecordingStatus"
	signalSaveStatus      = "SaveStatus"
)

// WireSource is (ssay(iiii)).
type WireSource struct {
	ID        string
	Name      string
	Thumbnail []byte
	Bounds    sources.Rect
}

// WireMonitor is (xs(iiii)b(ii)(iiii)d).
type WireMonitor struct {
	ID          int64
	Name        string
	Bounds      sources.Rect
	Primary     bool
	Size        sources.Size
	WorkArea    sources.Rect
	ScaleFactor float64
}

// SaveStatus is the save-status signal body, (bbss).
type SaveStatus struct {
	Success   bool
	Cancelled bool
	Message   string
	FilePath  string
}

type EventKind int

const (
	EventRecordingStatus EventKind = iota + 1
	EventSaveStatus
)

func (k EventKind) String() string {
	switch k {
	case EventRecordingStatus:
		return "recording_status"
	case EventSaveStatus:
		return "save_status"
	default:
		return "unknown"
	}
}

// Event is one host signal. Recording is set for EventRecordingStatus, Save
// for EventSaveStatus.
type Event struct {
	Kind      EventKind
	Recording bool
	Save      SaveStatus
}

func toWireSources(list []sources.CaptureSource) []WireSource {
	out := make([]WireSource, 0, len(list))
	for _, s := range list {
		thumb := s.Thumbnail
		if thumb == nil {
			// ay must not be nil on the wire.
			thumb = []byte{}
		}
		out = append(out, WireSource{ID: s.ID, Name: s.Name, Thumbnail: thumb, Bounds: s.Bounds})
	}
	return out
}

func fromWireSources(list []WireSource) []sources.CaptureSource {
	out := make([]sources.CaptureSource, 0, len(list))
	for _, w := range list {
		src := sources.CaptureSource{ID: w.ID, Name: w.Name, Bounds: w.Bounds}
		if len(w.Thumbnail) > 0 {
			src.Thumbnail = w.Thumbnail
		}
		out = append(out, src)
	}
	return out
}

func toWireMonitors(list []sources.DisplayInfo) []WireMonitor {
	out := make([]WireMonitor, 0, len(list))
	for _, d := range list {
		out = append(out, WireMonitor{
			ID:          d.ID,
			Name:        d.Name,
			Bounds:      d.Bounds,
			Primary:     d.Primary,
			Size:        d.Size,
			WorkArea:    d.WorkArea,
			ScaleFactor: d.ScaleFactor,
		})
	}
	return out
}

func fromWireMonitors(list []WireMonitor) []sources.DisplayInfo {
	out := make([]sources.DisplayInfo, 0, len(list))
	for _, w := range list {
		out = append(out, sources.DisplayInfo{
			ID:          w.ID,
			Name:        w.Name,
			Primary:     w.Primary,
			Bounds:      w.Bounds,
			Size:        w.Size,
			WorkArea:    w.WorkArea,
			ScaleFactor: w.ScaleFactor,
		})
	}
	return out
}

func toSaveStatus(o host.Outcome) SaveStatus {
	return SaveStatus{
		Success:   o.Success(),
		Cancelled: o.IsCancelled(),
		Message:   o.Message,
		FilePath:  o.Path,
	}
}
