package session

import "fmt"

const (
	statusLoadingMonitors = "Loading monitors..."
	statusLoadingWindows  = "Loading available windows..."
	statusNoWindows       = "No window sources found"
	statusNoMonitors      = "No monitors found"
	statusPickWindow      = "Select a window to record"
	statusPickMonitor     = "Select a monitor to record"
	statusPickMonitorOnly = "Please select a monitor"
	statusNoSelection     = "Please select a source first"
	statusNoStream        = "No stream available. Please try selecting a source again."
	statusProcessing      = "Processing recording..."
	statusSaveCancelled   = "Save cancelled"
	statusSaveTimedOut    = "Error: The host did not confirm the save"
)

func statusSelected(name string) string { return "Selected: " + name }

func statusReady(monitor string) string { return "Ready to record " + monitor }

func statusRecording(name string) string { return fmt.Sprintf("Recording %s...", name) }

func statusSaved(path string) string { return "Recording saved to: " + path }

func statusError(msg string) string { return "Error: " + msg }

func statusSourcesFailed(err error) string {
	return statusError("Could not get window sources. " + err.Error())
}

func statusMonitorsFailed(err error) string {
	return statusError("Could not get monitors. " + err.Error())
}

func statusCaptureFailed(err error) string {
	return statusError("Could not access screen capture. " + err.Error())
}

func statusRecordingFailed(err error) string {
	return statusError("Recording failed. " + err.Error())
}
