package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/screenrec/sources"
)

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&Options{Host: newFakeHost()})
	require.Error(t, err)
}

func TestRefreshListsWindowsAndMonitors(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)

	snap = h.loaded(t)
	assert.Equal(t, StateSourceListed, snap.State)
	assert.Equal(t, []sources.CaptureSource{notes, terminal}, snap.Windows)
	assert.Equal(t, []sources.DisplayInfo{display1}, snap.Monitors)
	assert.Equal(t, statusPickWindow, snap.Status)
	assert.True(t, snap.Controls.SelectionEnabled)
	assert.False(t, snap.Controls.StartEnabled)
}

func TestRefreshEmptyLists(t *testing.T) {
	host := newFakeHost()
	host.sources = []sources.CaptureSource{screen0}
	host.monitors = nil
	h := newHarness(t, host)

	snap := h.loaded(t)
	assert.Equal(t, statusNoWindows, snap.Status)

	h.c.SwitchTab(TabMonitors)
	snap = h.waitFor(t, func(s Snapshot) bool { return s.Tab == TabMonitors }, "tab switched")
	assert.Equal(t, statusNoMonitors, snap.Status)
}

func TestEnumerationFailureSetsStatus(t *testing.T) {
	host := newFakeHost()
	host.srcErr = errors.New("bus gone")
	h := newHarness(t, host)

	snap := h.loaded(t)
	assert.Equal(t, "Error: Could not get window sources. bus gone", snap.Status)
	assert.Empty(t, snap.Windows)
	// The monitor list still loaded.
	assert.Equal(t, StateSourceListed, snap.State)
}

func TestSelectWindowOpensStream(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)

	h.c.SelectWindow(notes.ID)
	snap := h.previewing(t)
	w, ok := snap.Selection.Window()
	require.True(t, ok)
	assert.Equal(t, notes, w)
	assert.Equal(t, "Selected: Notes", snap.Status)
	assert.True(t, snap.Controls.StartEnabled)
	assert.NotNil(t, h.c.Preview())
	assert.Equal(t, []sources.CaptureSource{notes}, h.open.openedTargets())
}

func TestSelectUnknownWindowIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)

	h.c.SelectWindow("window:999:0")
	snap := h.barrier(t)
	assert.True(t, snap.Selection.Empty())
	assert.Empty(t, h.open.openedTargets())
}

func TestSelectMonitorCapturesDesktop(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)

	h.c.SelectMonitor(display1.ID)
	snap := h.previewing(t)
	id, ok := snap.Selection.Monitor()
	require.True(t, ok)
	assert.Equal(t, display1.ID, id)
	assert.Equal(t, TabMonitors, snap.Tab)
	assert.Equal(t, "Ready to record Display 1 (Primary)", snap.Status)

	targets := h.open.openedTargets()
	require.Len(t, targets, 1)
	assert.Equal(t, sources.DesktopID, targets[0].ID)
}

func TestSelectUnknownMonitorClearsSelection(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)

	h.c.SelectMonitor(42)
	snap := h.waitFor(t, func(s Snapshot) bool { return s.Status == statusPickMonitorOnly }, "cleared")
	assert.True(t, snap.Selection.Empty())
	assert.False(t, snap.HasStream)
	assert.Equal(t, StateSourceListed, snap.State)
	assert.True(t, h.open.streams()[0].closed.Load())
}

// A window and a monitor are never selected together, whatever the order of
// user actions.
func TestSelectionStaysExclusive(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)

	steps := []struct {
		do   func()
		want Mode
	}{
		{func() { h.c.SelectWindow(notes.ID) }, ModeWindow},
		{func() { h.c.SelectMonitor(display1.ID) }, ModeMonitor},
		{func() { h.c.SelectWindow(terminal.ID) }, ModeWindow},
		{func() { h.c.SwitchTab(TabMonitors) }, ModeNone},
		{func() { h.c.SelectMonitor(display1.ID) }, ModeMonitor},
		{func() { h.c.SwitchTab(TabWindows) }, ModeNone},
		{func() { h.c.SelectMonitor(7) }, ModeNone},
	}
	for i, step := range steps {
		step.do()
		snap := h.barrier(t)
		require.NoError(t, snap.Selection.Validate(), "step %d", i)
		assert.Equal(t, step.want, snap.Selection.Mode(), "step %d", i)
	}
	assert.NotContains(t, h.logs.String(), "selection invariant violated")
}

func TestSwitchTab(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)

	// Same tab is a no-op.
	h.c.SwitchTab(TabWindows)
	snap := h.barrier(t)
	assert.Equal(t, ModeWindow, snap.Selection.Mode())
	assert.True(t, snap.HasStream)

	h.c.SwitchTab(TabMonitors)
	snap = h.waitFor(t, func(s Snapshot) bool { return s.Tab == TabMonitors }, "tab switched")
	assert.True(t, snap.Selection.Empty())
	assert.False(t, snap.HasStream)
	assert.Equal(t, statusPickMonitor, snap.Status)
	assert.True(t, h.open.streams()[0].closed.Load())
}

func TestReselectReplacesStream(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)

	h.c.SelectWindow(notes.ID)
	h.previewing(t)
	h.c.SelectWindow(notes.ID)
	require.Eventually(t, func() bool { return len(h.open.streams()) == 2 }, waitTimeout, waitTick)
	h.previewing(t)

	streams := h.open.streams()
	assert.True(t, streams[0].closed.Load())
	assert.False(t, streams[1].closed.Load())
}

func TestStaleStreamIsClosed(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.open.gates = []chan struct{}{gate}
	h.loaded(t)

	h.c.SelectWindow(notes.ID)
	require.Eventually(t, func() bool { return len(h.open.openedTargets()) == 1 }, waitTimeout, waitTick)
	h.c.SelectWindow(terminal.ID)
	snap := h.previewing(t)
	w, _ := snap.Selection.Window()
	assert.Equal(t, terminal, w)

	close(gate)
	require.Eventually(t, func() bool { return len(h.open.streams()) == 2 }, waitTimeout, waitTick)
	require.Eventually(t, func() bool {
		for _, s := range h.open.streams() {
			if s.src.ID == notes.ID {
				return s.closed.Load()
			}
		}
		return false
	}, waitTimeout, waitTick)

	snap = h.barrier(t)
	w, _ = snap.Selection.Window()
	assert.Equal(t, terminal, w)
	assert.True(t, snap.HasStream)
}

func TestStreamFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.open.err = errors.New("permission denied")
	h.loaded(t)

	h.c.SelectWindow(notes.ID)
	snap := h.waitFor(t, func(s Snapshot) bool {
		return s.Status == "Error: Could not access screen capture. permission denied"
	}, "capture failure")
	assert.Equal(t, StateSourceListed, snap.State)
	assert.False(t, snap.Controls.StartEnabled)
}

// Later refreshes win even when an earlier reply arrives last.
func TestRefreshDiscardsStaleReplies(t *testing.T) {
	host := newFakeHost()
	gate := make(chan struct{})
	host.srcReplies = []reply[sources.CaptureSource]{
		{list: []sources.CaptureSource{notes}, gate: gate},
		{list: []sources.CaptureSource{terminal}},
	}
	h := newHarness(t, host)

	h.c.Refresh()
	h.c.Refresh()
	snap := h.waitFor(t, func(s Snapshot) bool { return s.WindowsVersion == 1 }, "second reply")
	assert.Equal(t, []sources.CaptureSource{terminal}, snap.Windows)

	close(gate)
	require.Eventually(t, func() bool {
		return contains(h.logs.String(), `msg="discarded stale response" kind=sources`)
	}, waitTimeout, waitTick)
	snap = h.barrier(t)
	assert.Equal(t, []sources.CaptureSource{terminal}, snap.Windows)
	assert.Equal(t, uint64(1), snap.WindowsVersion)
}

func TestRefreshClearsSelection(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)

	h.c.Refresh()
	snap := h.waitFor(t, func(s Snapshot) bool { return s.WindowsVersion == 2 }, "reloaded")
	assert.True(t, snap.Selection.Empty())
	assert.False(t, snap.HasStream)
	assert.True(t, h.open.streams()[0].closed.Load())
}

func TestStartWithoutSelection(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)

	h.c.Start()
	snap := h.waitFor(t, func(s Snapshot) bool { return s.Status == statusNoSelection }, "no selection")
	assert.Equal(t, StateSourceListed, snap.State)
	assert.Zero(t, h.enc.started())
}

func TestStartWithoutStream(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	defer close(gate)
	h.open.gates = []chan struct{}{gate}
	h.loaded(t)

	h.c.SelectWindow(notes.ID)
	h.c.Start()
	snap := h.waitFor(t, func(s Snapshot) bool { return s.Status == statusNoStream }, "no stream")
	assert.NotEqual(t, StateRecording, snap.State)
	assert.Zero(t, h.enc.started())
	_, _, starts, _, _ := h.host.counts()
	assert.Zero(t, starts)
}

func TestStartEncoderFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.enc.startErr = errors.New("no ffmpeg")
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)

	h.c.Start()
	snap := h.waitFor(t, func(s Snapshot) bool { return s.Status == "Error: Recording failed. no ffmpeg" }, "start failure")
	assert.Equal(t, StatePreviewing, snap.State)
}

func TestRecordingRefusesSelectionChanges(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)
	h.recording(t)

	before := h.c.Snapshot()
	assert.True(t, before.Controls.StopEnabled)
	assert.False(t, before.Controls.StartEnabled)
	assert.False(t, before.Controls.SelectionEnabled)

	h.c.SelectWindow(terminal.ID)
	h.c.SelectMonitor(display1.ID)
	h.c.SwitchTab(TabMonitors)
	h.c.Refresh()
	h.c.Start()
	after := h.barrier(t)

	assert.Equal(t, StateRecording, after.State)
	assert.Equal(t, before.Selection, after.Selection)
	assert.Equal(t, before.Tab, after.Tab)
	assert.Equal(t, before.Status, after.Status)
	assert.Len(t, h.open.openedTargets(), 1)
	assert.Equal(t, 1, h.enc.started())
	src, _, _, _, _ := h.host.counts()
	assert.Equal(t, 1, src)
}

func TestStopWhenNotRecordingIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	before := h.previewing(t)

	h.c.Stop()
	after := h.barrier(t)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Status, after.Status)
	assert.Empty(t, h.host.stopped())
}

func TestRecordingHandsOffConcatenatedChunks(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)
	run := h.recording(t)

	snap := h.c.Snapshot()
	assert.Equal(t, "Recording Notes...", snap.Status)
	assert.NotEmpty(t, snap.RecordingID)

	run.emit([]byte("ab"))
	run.emit(nil)
	run.emit([]byte("cd"))
	run.emit([]byte("ef"))
	h.waitFor(t, func(s Snapshot) bool { return s.RecordedBytes == 6 }, "chunks recorded")

	h.c.Stop()
	require.Eventually(t, func() bool { return len(h.host.stopped()) == 1 }, waitTimeout, waitTick)
	assert.Equal(t, []byte("abcdef"), h.host.stopped()[0])

	snap = h.barrier(t)
	assert.Equal(t, StateFinalizing, snap.State)
	assert.Equal(t, statusProcessing, snap.Status)
	assert.Empty(t, snap.RecordingID)

	// A second stop does not send the payload again.
	h.c.Stop()
	h.barrier(t)
	assert.Len(t, h.host.stopped(), 1)
	_, _, starts, cancels, _ := h.host.counts()
	assert.Equal(t, 1, starts)
	assert.Zero(t, cancels)
}

func TestChunksFromOldRecordingAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	h.host.afterStop = func([]byte) {
		h.c.NotifySaveStatus(SaveResult{Cancelled: true})
	}
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)

	first := h.recording(t)
	first.emit([]byte("old"))
	h.c.Stop()
	h.waitFor(t, func(s Snapshot) bool { return s.Status == statusSaveCancelled }, "first saved")

	second := h.recording(t)
	first.emit([]byte("late"))
	second.emit([]byte("new"))
	h.c.Stop()
	require.Eventually(t, func() bool { return len(h.host.stopped()) == 2 }, waitTimeout, waitTick)
	assert.Equal(t, []byte("new"), h.host.stopped()[1])
}

func TestEncoderExitCancelsRecording(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)
	run := h.recording(t)

	run.emit([]byte("partial"))
	run.finish(errors.New("ffmpeg crashed"))

	snap := h.waitFor(t, func(s Snapshot) bool { return s.Status == "Error: Recording failed. ffmpeg crashed" }, "failed")
	assert.Equal(t, StatePreviewing, snap.State)
	assert.Empty(t, snap.RecordingID)
	require.Eventually(t, func() bool {
		_, _, _, cancels, _ := h.host.counts()
		return cancels == 1
	}, waitTimeout, waitTick)
	assert.Empty(t, h.host.stopped())
	assert.True(t, run.closed.Load())
}

func TestFinalizeFailureCancelsRecording(t *testing.T) {
	h := newHarness(t, nil)
	h.enc.stopErr = errors.New("moov atom missing")
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)
	h.recording(t)

	h.c.Stop()
	snap := h.waitFor(t, func(s Snapshot) bool {
		return s.Status == "Error: Recording failed. moov atom missing"
	}, "finalize failure")
	assert.Equal(t, StatePreviewing, snap.State)
	assert.Empty(t, h.host.stopped())
}

func TestHostStopFailureLeavesFinalizing(t *testing.T) {
	h := newHarness(t, nil)
	h.host.stopErr = errors.New("host unreachable")
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)
	h.recording(t)

	h.c.Stop()
	snap := h.waitFor(t, func(s Snapshot) bool { return s.Status == "Error: host unreachable" }, "host failure")
	assert.Equal(t, StatePreviewing, snap.State)
	assert.True(t, snap.Controls.StartEnabled)
}

func TestMissingSaveStatusLeavesFinalizing(t *testing.T) {
	h := newHarnessWith(t, nil, func(o *Options) { o.SaveTimeout = 50 * time.Millisecond })
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)
	h.recording(t)

	h.c.Stop()
	snap := h.waitFor(t, func(s Snapshot) bool { return s.Status == statusSaveTimedOut }, "save timeout")
	assert.Equal(t, StatePreviewing, snap.State)
	assert.True(t, snap.Controls.StartEnabled)
	assert.True(t, snap.Controls.SelectionEnabled)
	assert.Len(t, h.host.stopped(), 1)
}

func TestLateSaveStatusStillReported(t *testing.T) {
	h := newHarnessWith(t, nil, func(o *Options) { o.SaveTimeout = 20 * time.Millisecond })
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)
	h.recording(t)
	h.c.Stop()
	h.waitFor(t, func(s Snapshot) bool { return s.Status == statusSaveTimedOut }, "save timeout")

	h.c.NotifySaveStatus(SaveResult{Success: true, Path: "/tmp/late.mp4"})
	snap := h.waitFor(t, func(s Snapshot) bool { return s.Status == "Recording saved to: /tmp/late.mp4" }, "late save")
	assert.Equal(t, StatePreviewing, snap.State)
}

func TestSaveStatusMessages(t *testing.T) {
	tests := []struct {
		name string
		res  SaveResult
		want string
	}{
		{"saved", SaveResult{Success: true, Path: "/tmp/a.mp4"}, "Recording saved to: /tmp/a.mp4"},
		{"cancelled", SaveResult{Cancelled: true}, statusSaveCancelled},
		{"failed", SaveResult{Message: "Failed to save recording: disk full"}, "Error: Failed to save recording: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.c.NotifySaveStatus(tt.res)
			h.waitFor(t, func(s Snapshot) bool { return s.Status == tt.want }, tt.name)
		})
	}
}

func TestListenerReceivesSnapshots(t *testing.T) {
	h := newHarness(t, nil)
	got := make(chan Snapshot, eventQueueSize)
	h.c.AddListener(func(s Snapshot) {
		select {
		case got <- s:
		default:
		}
	})
	h.c.NotifyRecordingStatus(true)
	require.Eventually(t, func() bool {
		for {
			select {
			case s := <-got:
				if s.HostRecording {
					return true
				}
			default:
				return false
			}
		}
	}, waitTimeout, waitTick)
}

func TestCloseReleasesResources(t *testing.T) {
	h := newHarness(t, nil)
	h.loaded(t)
	h.c.SelectWindow(notes.ID)
	h.previewing(t)
	run := h.recording(t)

	require.NoError(t, h.c.Close())
	assert.ErrorIs(t, h.c.Close(), ErrClosed)
	assert.True(t, run.closed.Load())
	assert.True(t, h.open.streams()[0].closed.Load())
	assert.False(t, h.c.Snapshot().HasStream)
	assert.Nil(t, h.c.Preview())
}
