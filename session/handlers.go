package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"go2tv.app/screenrec/sources"
)

type event interface{ name() string }

type (
	evRefresh       struct{}
	evSelectWindow  struct{ id string }
	evSelectMonitor struct{ id int64 }
	evSwitchTab     struct{ tab Tab }
	evStart         struct{}
	evStop          struct{}

	evSourcesLoaded struct {
		gen  uint64
		list []sources.CaptureSource
		err  error
	}
	evMonitorsLoaded struct {
		gen  uint64
		list []sources.DisplayInfo
		err  error
	}
	evStreamOpened struct {
		gen    uint64
		stream Stream
		err    error
	}
	evChunk struct {
		recID string
		data  []byte
	}
	evEncoderExited struct {
		recID string
		err   error
	}
	evFinalized struct {
		recID string
		err   error
	}
	evHostFailed struct {
		op  string
		err error
	}
	evSaveTimeout     struct{ gen uint64 }
	evRecordingStatus struct{ recording bool }
	evSaveStatus      struct{ res SaveResult }
)

func (evRefresh) name() string         { return "refresh" }
func (evSelectWindow) name() string    { return "select_window" }
func (evSelectMonitor) name() string   { return "select_monitor" }
func (evSwitchTab) name() string       { return "switch_tab" }
func (evStart) name() string           { return "start" }
func (evStop) name() string            { return "stop" }
func (evSourcesLoaded) name() string   { return "sources_loaded" }
func (evMonitorsLoaded) name() string  { return "monitors_loaded" }
func (evStreamOpened) name() string    { return "stream_opened" }
func (evChunk) name() string           { return "chunk" }
func (evEncoderExited) name() string   { return "encoder_exited" }
func (evFinalized) name() string       { return "finalized" }
func (evHostFailed) name() string      { return "host_failed" }
func (evSaveTimeout) name() string     { return "save_timeout" }
func (evRecordingStatus) name() string { return "recording_status" }
func (evSaveStatus) name() string      { return "save_status" }

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case evRefresh:
		c.onRefresh()
	case evSelectWindow:
		c.onSelectWindow(ev.id)
	case evSelectMonitor:
		c.onSelectMonitor(ev.id)
	case evSwitchTab:
		c.onSwitchTab(ev.tab)
	case evStart:
		c.onStart()
	case evStop:
		c.onStop()
	case evSourcesLoaded:
		c.onSourcesLoaded(ev)
	case evMonitorsLoaded:
		c.onMonitorsLoaded(ev)
	case evStreamOpened:
		c.onStreamOpened(ev)
	case evChunk:
		c.onChunk(ev)
	case evEncoderExited:
		c.onEncoderExited(ev)
	case evFinalized:
		c.onFinalized(ev)
	case evHostFailed:
		c.onHostFailed(ev)
	case evSaveTimeout:
		c.onSaveTimeout(ev)
	case evRecordingStatus:
		c.hostRec = ev.recording
	case evSaveStatus:
		c.onSaveStatus(ev.res)
	default:
		c.logger.Warn("unknown session event", "event", fmt.Sprintf("%T", ev))
	}
}

// refused logs an action arriving while recording. The view disables these
// controls, so reaching here means a stale click.
func (c *Controller) refused(action string) bool {
	if !c.state.busy() {
		return false
	}
	c.logger.Debug("action refused while recording", "action", action, "state", c.state.String())
	return true
}

func (c *Controller) onRefresh() {
	if c.refused("refresh") {
		return
	}
	c.srcGen++
	c.monGen++
	c.clearSelection()
	c.state = c.listedState()

	c.status = statusLoadingWindows
	if c.tab == TabMonitors {
		c.status = statusLoadingMonitors
	}

	monGen := c.monGen
	go func() {
		ctx, cancel := c.callCtx()
		defer cancel()
		list, err := c.host.Monitors(ctx)
		c.post(evMonitorsLoaded{gen: monGen, list: list, err: err})
	}()

	srcGen := c.srcGen
	go func() {
		ctx, cancel := c.callCtx()
		defer cancel()
		list, err := c.host.Sources(ctx)
		c.post(evSourcesLoaded{gen: srcGen, list: list, err: err})
	}()
}

func (c *Controller) onSourcesLoaded(ev evSourcesLoaded) {
	if ev.gen != c.srcGen {
		c.logger.Debug("discarded stale response", "kind", "sources", "gen", ev.gen, "current", c.srcGen)
		return
	}
	c.winVer++
	if ev.err != nil {
		c.windows = nil
		c.logger.Warn("window enumeration failed", "err", ev.err)
		if !c.state.busy() {
			c.status = statusSourcesFailed(ev.err)
		}
		return
	}
	c.windows = sources.Windows(ev.list)
	c.winLoaded = true
	if c.state == StateIdle {
		c.state = StateSourceListed
	}
	if c.tab != TabWindows || c.state.busy() {
		return
	}
	if len(c.windows) == 0 {
		c.status = statusNoWindows
		return
	}
	c.status = statusPickWindow
}

func (c *Controller) onMonitorsLoaded(ev evMonitorsLoaded) {
	if ev.gen != c.monGen {
		c.logger.Debug("discarded stale response", "kind", "monitors", "gen", ev.gen, "current", c.monGen)
		return
	}
	c.monVer++
	if ev.err != nil {
		c.monitors = nil
		c.logger.Warn("monitor enumeration failed", "err", ev.err)
		if !c.state.busy() {
			c.status = statusMonitorsFailed(ev.err)
		}
		return
	}
	c.monitors = ev.list
	c.monLoaded = true
	if c.state == StateIdle {
		c.state = StateSourceListed
	}
	if c.tab != TabMonitors || c.state.busy() {
		return
	}
	if len(c.monitors) == 0 {
		c.status = statusNoMonitors
		return
	}
	c.status = statusPickMonitor
}

func (c *Controller) onSelectWindow(id string) {
	if c.refused("select_window") {
		return
	}
	src, ok := lo.Find(c.windows, func(s sources.CaptureSource) bool { return s.ID == id })
	if !ok {
		c.logger.Warn("unknown window selected", "source_id", id)
		return
	}
	c.tab = TabWindows
	c.selection = WindowSelection(src)
	c.status = statusSelected(src.Name)
	c.acquire(src)
}

func (c *Controller) onSelectMonitor(id int64) {
	if c.refused("select_monitor") {
		return
	}
	d, ok := c.monitor(id)
	if !ok {
		c.clearSelection()
		c.state = c.listedState()
		c.status = statusPickMonitorOnly
		return
	}
	c.tab = TabMonitors
	c.selection = MonitorSelection(d.ID)
	c.status = statusSelected(d.Name)
	// Capture is not addressable per display, so every monitor pick records
	// the whole desktop.
	c.acquire(sources.DesktopSource(c.monitors))
}

func (c *Controller) onSwitchTab(tab Tab) {
	if c.refused("switch_tab") {
		return
	}
	if tab == c.tab {
		return
	}
	c.tab = tab
	c.clearSelection()
	c.state = c.listedState()
	switch {
	case tab == TabWindows && c.winLoaded && len(c.windows) == 0:
		c.status = statusNoWindows
	case tab == TabWindows:
		c.status = statusPickWindow
	case tab == TabMonitors && c.monLoaded && len(c.monitors) == 0:
		c.status = statusNoMonitors
	default:
		c.status = statusPickMonitor
	}
}

// acquire replaces the live stream with one bound to src. The previous
// stream is closed before the new one is requested.
func (c *Controller) acquire(src sources.CaptureSource) {
	c.selGen++
	c.closeStream()
	c.state = c.listedState()

	gen := c.selGen
	go func() {
		ctx, cancel := c.callCtx()
		defer cancel()
		s, err := c.opener.Open(ctx, src)
		if !c.post(evStreamOpened{gen: gen, stream: s, err: err}) && s != nil {
			_ = s.Close()
		}
	}()
}

func (c *Controller) onStreamOpened(ev evStreamOpened) {
	if ev.gen != c.selGen || c.state.busy() || c.selection.Empty() {
		if ev.stream != nil {
			_ = ev.stream.Close()
		}
		c.logger.Debug("discarded stale response", "kind", "stream", "gen", ev.gen, "current", c.selGen)
		return
	}
	if ev.err != nil {
		c.status = statusCaptureFailed(ev.err)
		c.logger.Warn("stream acquisition failed", "err", ev.err)
		return
	}
	if ev.stream == nil {
		c.status = statusCaptureFailed(errors.New("no stream returned"))
		return
	}
	c.stream = ev.stream
	c.state = StatePreviewing
	if id, ok := c.selection.Monitor(); ok {
		if d, found := c.monitor(id); found {
			c.status = statusReady(d.Name)
		}
	}
}

func (c *Controller) onStart() {
	if c.state.busy() {
		return
	}
	if c.selection.Empty() {
		c.status = statusNoSelection
		return
	}
	if c.stream == nil {
		c.status = statusNoStream
		return
	}

	rec := &recording{id: uuid.NewString(), name: c.selectionName()}
	run, err := c.encoder.Start(c.stream, func(b []byte) {
		c.post(evChunk{recID: rec.id, data: b})
	})
	if err != nil {
		c.status = statusRecordingFailed(err)
		c.logger.Error("encoder start failed", "recording_id", rec.id, "err", err)
		return
	}
	rec.run = run
	c.rec = rec
	c.state = StateRecording
	c.status = statusRecording(rec.name)
	c.logger.Info("recording started", "recording_id", rec.id, "source", rec.name)

	go func() {
		<-run.Done()
		c.post(evEncoderExited{recID: rec.id, err: run.Err()})
	}()
	go func() {
		ctx, cancel := c.callCtx()
		defer cancel()
		if err := c.host.StartRecording(ctx); err != nil {
			c.post(evHostFailed{op: "start-recording", err: err})
		}
	}()
}

func (c *Controller) onStop() {
	if c.state != StateRecording || c.rec == nil {
		return
	}
	c.state = StateFinalizing
	c.status = statusProcessing

	rec := c.rec
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.stopTimeout)
		defer cancel()
		err := rec.run.Stop(ctx)
		c.post(evFinalized{recID: rec.id, err: err})
	}()
}

func (c *Controller) onChunk(ev evChunk) {
	if c.rec == nil || c.rec.id != ev.recID || len(ev.data) == 0 {
		return
	}
	c.rec.chunks = append(c.rec.chunks, ev.data)
	c.rec.bytes += int64(len(ev.data))
}

func (c *Controller) onEncoderExited(ev evEncoderExited) {
	if c.rec == nil || c.rec.id != ev.recID || c.state != StateRecording {
		return
	}
	err := ev.err
	if err == nil {
		err = errors.New("encoder exited unexpectedly")
	}
	c.failRecording(err)
}

func (c *Controller) onFinalized(ev evFinalized) {
	if c.rec == nil || c.rec.id != ev.recID || c.state != StateFinalizing {
		return
	}
	if ev.err != nil {
		c.failRecording(ev.err)
		return
	}

	rec := c.rec
	payload := bytes.Join(rec.chunks, nil)
	// The payload is handed off once; nothing is kept for a retry.
	rec.chunks = nil
	c.rec = nil
	c.logger.Info("recording finalized",
		"recording_id", rec.id,
		"chunks_bytes", humanize.Bytes(uint64(len(payload))),
	)

	c.saveGen++
	gen := c.saveGen
	go func() {
		ctx, cancel := c.callCtx()
		err := c.host.StopRecording(ctx, payload)
		cancel()
		if err != nil {
			c.post(evHostFailed{op: "stop-recording", err: err})
			return
		}
		t := time.NewTimer(c.saveTimeout)
		defer t.Stop()
		select {
		case <-t.C:
			c.post(evSaveTimeout{gen: gen})
		case <-c.ctx.Done():
		}
	}()
}

// onSaveTimeout leaves Finalizing when the host accepted the recording but
// never reported how the save ended.
func (c *Controller) onSaveTimeout(ev evSaveTimeout) {
	if ev.gen != c.saveGen || c.state != StateFinalizing {
		return
	}
	c.logger.Error("no save status from host", "timeout", c.saveTimeout.String())
	c.state = c.postRecordingState()
	c.status = statusSaveTimedOut
}

// failRecording ends the current recording without persisting anything.
func (c *Controller) failRecording(err error) {
	rec := c.rec
	c.rec = nil
	if rec != nil {
		_ = rec.run.Close()
		c.logger.Error("recording failed", "recording_id", rec.id, "err", err)
	}
	c.state = c.postRecordingState()
	c.status = statusRecordingFailed(err)

	go func() {
		ctx, cancel := c.callCtx()
		defer cancel()
		if err := c.host.CancelRecording(ctx); err != nil {
			c.post(evHostFailed{op: "cancel-recording", err: err})
		}
	}()
}

func (c *Controller) onHostFailed(ev evHostFailed) {
	c.logger.Error("host request failed", "op", ev.op, "err", ev.err)
	if ev.op == "stop-recording" && c.state == StateFinalizing {
		// No save-status will follow.
		c.state = c.postRecordingState()
		c.status = statusError(ev.err.Error())
	}
}

func (c *Controller) onSaveStatus(res SaveResult) {
	switch {
	case res.Success:
		c.status = statusSaved(res.Path)
	case res.Cancelled:
		c.status = statusSaveCancelled
	default:
		c.status = statusError(res.Message)
	}
	if c.state == StateFinalizing {
		c.state = c.postRecordingState()
	}
}

func (c *Controller) clearSelection() {
	c.selGen++
	c.selection = NoSelection()
	c.closeStream()
}

func (c *Controller) closeStream() {
	if c.stream == nil {
		return
	}
	if err := c.stream.Close(); err != nil {
		c.logger.Debug("stream close", "err", err)
	}
	c.stream = nil
}

func (c *Controller) listedState() State {
	if c.winLoaded || c.monLoaded {
		return StateSourceListed
	}
	return StateIdle
}

func (c *Controller) postRecordingState() State {
	if !c.selection.Empty() && c.stream != nil {
		return StatePreviewing
	}
	return c.listedState()
}

func (c *Controller) monitor(id int64) (sources.DisplayInfo, bool) {
	return lo.Find(c.monitors, func(d sources.DisplayInfo) bool { return d.ID == id })
}

func (c *Controller) selectionName() string {
	if w, ok := c.selection.Window(); ok {
		return w.Name
	}
	if id, ok := c.selection.Monitor(); ok {
		if d, found := c.monitor(id); found {
			return d.Name
		}
		return "monitor"
	}
	return ""
}
