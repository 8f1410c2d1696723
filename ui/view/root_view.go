// Package view renders the recorder window with Tk.
package view

import (
	"image"
	"log/slog"
	"strconv"

	"github.com/samber/lo"

	"go2tv.app/screenrec/session"
	"go2tv.app/screenrec/ui/images"
	"go2tv.app/screenrec/ui/presenter"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

const (
	maxPreviewW   = 480
	maxPreviewH   = 270
	thumbSize     = 120
	thumbColumns  = 4
	recordingText = "● REC"
)

// Actions are the user intents the view forwards.
type Actions struct {
	Refresh       func()
	SwitchTab     func(session.Tab)
	SelectWindow  func(id string)
	SelectMonitor func(id int64)
	Start         func()
	Stop          func()
	Exit          func()
}

// RootView owns the main window widgets. It implements presenter.View.
type RootView struct {
	logger  *slog.Logger
	actions Actions

	windowsTab  *ButtonWidget
	monitorsTab *ButtonWidget
	refreshBtn  *ButtonWidget
	startBtn    *ButtonWidget
	stopBtn     *ButtonWidget
	status      *LabelWidget
	indicator   *LabelWidget
	preview     *LabelWidget
	monitorBox  *TComboboxWidget
	windowsGrid *FrameWidget

	previewPhoto *Img
	windowBtns   map[string]*ButtonWidget
	windowPhotos []*Img
	monitors     []presenter.MonitorItem
	selectable   bool
}

var _ presenter.View = (*RootView)(nil)

func NewRootView(logger *slog.Logger) *RootView {
	if logger == nil {
		logger = slog.Default()
	}
	return &RootView{logger: logger, windowBtns: map[string]*ButtonWidget{}, selectable: true}
}

// Build lays out the window. Handlers in actions may be nil.
func (rv *RootView) Build(title string, actions Actions) {
	rv.actions = actions
	App.WmTitle(title)
	WmProtocol(App, "WM_DELETE_WINDOW", func() { call(actions.Exit) })

	// Row 0: tabs, refresh and the recording indicator.
	bar := Frame()
	Grid(bar, Row(0), Column(0), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	rv.windowsTab = Button(Txt("Windows"), Command(func() { callTab(actions.SwitchTab, session.TabWindows) }))
	rv.monitorsTab = Button(Txt("Monitors"), Command(func() { callTab(actions.SwitchTab, session.TabMonitors) }))
	rv.refreshBtn = Button(Txt("Refresh"), Command(func() { call(actions.Refresh) }))
	rv.indicator = Label(Txt(""), Foreground("red"))
	Grid(rv.windowsTab, In(bar), Row(0), Column(0), Padx("0.2m"))
	Grid(rv.monitorsTab, In(bar), Row(0), Column(1), Padx("0.2m"))
	Grid(rv.refreshBtn, In(bar), Row(0), Column(2), Padx("0.2m"))
	Grid(rv.indicator, In(bar), Row(0), Column(3), Sticky("e"), Padx("0.4m"))

	// Row 1: window thumbnails.
	rv.windowsGrid = Frame(Borderwidth(1), Relief("groove"))
	Grid(rv.windowsGrid, Row(1), Column(0), Sticky("we"), Padx("0.4m"), Pady("0.3m"))

	// Row 2: monitor picker.
	rv.monitorBox = TCombobox(Values([]string{}), Width(40), State("readonly"))
	Grid(rv.monitorBox, Row(2), Column(0), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	Bind(rv.monitorBox, "<<ComboboxSelected>>", Command(rv.onMonitorPicked))

	// Row 3: preview.
	rv.previewPhoto = NewPhoto(Data(images.EncodePNG(images.Placeholder(maxPreviewW, maxPreviewH))))
	rv.preview = Label(Image(rv.previewPhoto), Borderwidth(1), Relief("sunken"))
	Grid(rv.preview, Row(3), Column(0), Sticky("we"), Padx("0.4m"), Pady("0.4m"))

	// Row 4: start, stop and the status line.
	ctl := Frame()
	Grid(ctl, Row(4), Column(0), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	rv.startBtn = Button(Txt("Start Recording"), Command(func() { call(actions.Start) }), State("disabled"))
	rv.stopBtn = Button(Txt("Stop Recording"), Command(func() { call(actions.Stop) }), State("disabled"))
	Grid(rv.startBtn, In(ctl), Row(0), Column(0), Padx("0.2m"))
	Grid(rv.stopBtn, In(ctl), Row(0), Column(1), Padx("0.2m"))
	rv.status = Label(Txt(""), Anchor("w"))
	Grid(rv.status, Row(5), Column(0), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
}

func (rv *RootView) SetStatus(text string) {
	if rv.status != nil {
		rv.status.Configure(Txt(text))
	}
}

func (rv *RootView) SetControls(c session.Controls) {
	if rv.startBtn == nil {
		return
	}
	rv.startBtn.Configure(State(stateOf(c.StartEnabled)))
	rv.stopBtn.Configure(State(stateOf(c.StopEnabled)))
	rv.selectable = c.SelectionEnabled
	sel := stateOf(c.SelectionEnabled)
	rv.windowsTab.Configure(State(sel))
	rv.monitorsTab.Configure(State(sel))
	rv.refreshBtn.Configure(State(sel))
	for _, b := range rv.windowBtns {
		b.Configure(State(sel))
	}
	if c.SelectionEnabled {
		rv.monitorBox.Configure(State("readonly"))
	} else {
		rv.monitorBox.Configure(State("disabled"))
	}
}

func (rv *RootView) SetTab(tab session.Tab) {
	if rv.windowsTab == nil {
		return
	}
	if tab == session.TabWindows {
		rv.windowsTab.Configure(Relief("sunken"))
		rv.monitorsTab.Configure(Relief("raised"))
		return
	}
	rv.windowsTab.Configure(Relief("raised"))
	rv.monitorsTab.Configure(Relief("sunken"))
}

// SetWindows rebuilds the thumbnail grid.
func (rv *RootView) SetWindows(items []presenter.WindowItem) {
	if rv.windowsGrid == nil {
		return
	}
	for _, b := range rv.windowBtns {
		Destroy(b)
	}
	for _, img := range rv.windowPhotos {
		img.Delete()
	}
	rv.windowBtns = map[string]*ButtonWidget{}
	rv.windowPhotos = nil

	for i, item := range items {
		id := item.ID
		opts := []Opt{
			Txt(item.Name),
			Command(func() {
				if rv.actions.SelectWindow != nil {
					rv.actions.SelectWindow(id)
				}
			}),
			State(stateOf(rv.selectable)),
		}
		if thumb := images.DecodeThumbnail(item.Thumbnail, thumbSize); thumb != nil {
			photo := NewPhoto(Data(images.EncodePNG(thumb)))
			rv.windowPhotos = append(rv.windowPhotos, photo)
			opts = append(opts, Image(photo), Compound("top"))
		}
		btn := Button(opts...)
		Grid(btn, In(rv.windowsGrid), Row(i/thumbColumns), Column(i%thumbColumns), Padx("0.3m"), Pady("0.3m"))
		rv.windowBtns[id] = btn
	}
}

func (rv *RootView) SetMonitors(items []presenter.MonitorItem) {
	if rv.monitorBox == nil {
		return
	}
	rv.monitors = items
	rv.monitorBox.Configure(Values(lo.Map(items, func(m presenter.MonitorItem, _ int) string { return m.Label })))
}

func (rv *RootView) SetSelection(windowID string, monitorID int64) {
	for id, b := range rv.windowBtns {
		if id == windowID {
			b.Configure(Relief("sunken"))
		} else {
			b.Configure(Relief("raised"))
		}
	}
	if rv.monitorBox == nil {
		return
	}
	if _, idx, ok := lo.FindIndexOf(rv.monitors, func(m presenter.MonitorItem) bool { return m.ID == monitorID }); ok {
		rv.monitorBox.Current(idx)
	}
}

// SetPreview shows img scaled to the preview area, or a blank frame for nil.
func (rv *RootView) SetPreview(img image.Image) {
	if rv.preview == nil {
		return
	}
	if img == nil {
		img = images.Placeholder(maxPreviewW, maxPreviewH)
	}
	data := images.EncodePNG(images.ScaleToFit(img, maxPreviewW, maxPreviewH))
	if data == nil {
		return
	}
	// Drop the old photo so frames do not pile up in the interpreter.
	if rv.previewPhoto != nil {
		rv.previewPhoto.Delete()
	}
	rv.previewPhoto = NewPhoto(Data(data))
	rv.preview.Configure(Image(rv.previewPhoto))
}

func (rv *RootView) SetRecordingIndicator(on bool) {
	if rv.indicator == nil {
		return
	}
	if on {
		rv.indicator.Configure(Txt(recordingText))
		return
	}
	rv.indicator.Configure(Txt(""))
}

func (rv *RootView) onMonitorPicked() {
	raw := rv.monitorBox.Current(nil)
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || idx >= len(rv.monitors) {
		rv.logger.Error("monitor selection parse error", "index", raw, "err", err)
		return
	}
	if rv.actions.SelectMonitor != nil {
		rv.actions.SelectMonitor(rv.monitors[idx].ID)
	}
}

func stateOf(enabled bool) string {
	if enabled {
		return "normal"
	}
	return "disabled"
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func callTab(fn func(session.Tab), tab session.Tab) {
	if fn != nil {
		fn(tab)
	}
}
