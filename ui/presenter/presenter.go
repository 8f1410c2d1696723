// Package presenter maps session snapshots onto the view.
package presenter

import (
	"fmt"
	"image"

	"github.com/samber/lo"

	"go2tv.app/screenrec/session"
	"go2tv.app/screenrec/sources"
)

// Source is the controller surface the presenter reads.
type Source interface {
	Snapshot() session.Snapshot
	Preview() image.Image
}

// WindowItem is one entry of the window picker.
type WindowItem struct {
	ID        string
	Name      string
	Thumbnail []byte
}

// MonitorItem is one entry of the monitor picker.
type MonitorItem struct {
	ID    int64
	Label string
}

// View receives presentation updates. Every method is called on the UI
// thread, and only when the value changed.
type View interface {
	SetStatus(text string)
	SetControls(c session.Controls)
	SetTab(tab session.Tab)
	SetWindows(items []WindowItem)
	SetMonitors(items []MonitorItem)
	SetSelection(windowID string, monitorID int64)
	SetPreview(img image.Image)
	SetRecordingIndicator(on bool)
}

// Presenter pushes the controller state to a View on every Tick.
type Presenter struct {
	src  Source
	view View

	primed     bool
	status     string
	controls   session.Controls
	tab        session.Tab
	winVer     uint64
	monVer     uint64
	selWindow  string
	selMonitor int64
	hadPreview bool
	indicator  bool
}

func New(src Source, view View) *Presenter {
	return &Presenter{src: src, view: view}
}

// Tick applies the latest snapshot. The preview is pushed on every tick
// while a stream is live.
func (p *Presenter) Tick() {
	if p == nil || p.src == nil || p.view == nil {
		return
	}
	snap := p.src.Snapshot()
	first := !p.primed
	p.primed = true

	if first || snap.Status != p.status {
		p.status = snap.Status
		p.view.SetStatus(snap.Status)
	}
	if first || snap.Controls != p.controls {
		p.controls = snap.Controls
		p.view.SetControls(snap.Controls)
	}
	if first || snap.Tab != p.tab {
		p.tab = snap.Tab
		p.view.SetTab(snap.Tab)
	}
	if first || snap.WindowsVersion != p.winVer {
		p.winVer = snap.WindowsVersion
		p.view.SetWindows(WindowItems(snap.Windows))
	}
	if first || snap.MonitorsVersion != p.monVer {
		p.monVer = snap.MonitorsVersion
		p.view.SetMonitors(MonitorItems(snap.Monitors))
	}

	win, _ := snap.Selection.Window()
	mon, _ := snap.Selection.Monitor()
	if first || win.ID != p.selWindow || mon != p.selMonitor {
		p.selWindow, p.selMonitor = win.ID, mon
		p.view.SetSelection(win.ID, mon)
	}

	if first || snap.HostRecording != p.indicator {
		p.indicator = snap.HostRecording
		p.view.SetRecordingIndicator(snap.HostRecording)
	}

	switch {
	case snap.HasStream:
		if img := p.src.Preview(); img != nil {
			p.view.SetPreview(img)
			p.hadPreview = true
		}
	case p.hadPreview || first:
		p.view.SetPreview(nil)
		p.hadPreview = false
	}
}

func WindowItems(list []sources.CaptureSource) []WindowItem {
	return lo.Map(list, func(s sources.CaptureSource, _ int) WindowItem {
		return WindowItem{ID: s.ID, Name: s.Name, Thumbnail: s.Thumbnail}
	})
}

func MonitorItems(list []sources.DisplayInfo) []MonitorItem {
	return lo.Map(list, func(d sources.DisplayInfo, _ int) MonitorItem {
		return MonitorItem{ID: d.ID, Label: MonitorLabel(d)}
	})
}

// MonitorLabel renders "<name> (<w>x<h>)", with " - Primary" for the primary
// display.
func MonitorLabel(d sources.DisplayInfo) string {
	label := fmt.Sprintf("%s (%dx%d)", d.Name, d.Size.Width, d.Size.Height)
	if d.Primary {
		label += " - Primary"
	}
	return label
}
