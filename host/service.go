// Package host implements the privileged side of the recorder: it lists
// capture sources and displays, and persists finished recordings through a
// native save dialog.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"

	"go2tv.app/screenrec/sources"
)

const (
	dialogTitle     = "Save recording"
	defaultFilename = "recording.mp4"
)

// Enumerator lists capture sources and displays.
type Enumerator interface {
	Sources(ctx context.Context) ([]sources.CaptureSource, error)
	Displays(ctx context.Context) ([]sources.DisplayInfo, error)
}

// Notifier delivers host events to the UI process.
type Notifier interface {
	RecordingStatus(recording bool)
	SaveStatus(outcome Outcome)
}

type nopNotifier struct{}

func (nopNotifier) RecordingStatus(bool) {}
func (nopNotifier) SaveStatus(Outcome)   {}

type Options struct {
	Enumerator      Enumerator
	Dialog          Dialog
	Writer          Writer
	Notifier        Notifier
	Logger          *slog.Logger
	DefaultFilename string
	// SaveDir is the folder the dialog opens in. Defaults to the user's
	// Videos directory.
	SaveDir string
}

// Service is the host capability service.
type Service struct {
	enum   Enumerator
	dialog Dialog
	writer Writer
	logger *slog.Logger
	name   string
	dir    string

	mu       sync.RWMutex
	notifier Notifier
}

func New(options *Options) (*Service, error) {
	if options == nil {
		return nil, errors.New("nil options")
	}
	opts := *options
	if opts.Enumerator == nil {
		return nil, errors.New("enumerator is required")
	}
	if opts.Dialog == nil {
		return nil, errors.New("dialog is required")
	}
	if opts.Writer == nil {
		opts.Writer = FileWriter{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultFilename == "" {
		opts.DefaultFilename = defaultFilename
	}
	if opts.SaveDir == "" {
		opts.SaveDir = xdg.UserDirs.Videos
	}
	return &Service{
		enum:     opts.Enumerator,
		dialog:   opts.Dialog,
		writer:   opts.Writer,
		logger:   opts.Logger,
		name:     opts.DefaultFilename,
		dir:      opts.SaveDir,
		notifier: opts.Notifier,
	}, nil
}

// SetNotifier replaces the event sink. The IPC server registers itself here
// once it has exported the service.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

func (s *Service) notify() Notifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifier
}

func (s *Service) EnumerateSources(ctx context.Context) ([]sources.CaptureSource, error) {
	list, err := s.enum.Sources(ctx)
	if err != nil {
		s.logger.Error("enumerate sources failed", "err", err)
		return nil, err
	}
	s.logger.Debug("enumerated sources", "count", len(list), "windows", len(sources.Windows(list)))
	return list, nil
}

func (s *Service) EnumerateDisplays(ctx context.Context) ([]sources.DisplayInfo, error) {
	list, err := s.enum.Displays(ctx)
	if err != nil {
		s.logger.Error("enumerate displays failed", "err", err)
		return nil, err
	}
	s.logger.Debug("enumerated displays", "count", len(list))
	return list, nil
}

func (s *Service) BeginRecordingNotice() {
	s.logger.Info("recording started")
	s.notify().RecordingStatus(true)
}

func (s *Service) EndRecordingNotice() {
	s.notify().RecordingStatus(false)
}

// PersistRecording asks for a destination and writes data there. It never
// returns an error; failures are folded into the Outcome.
func (s *Service) PersistRecording(ctx context.Context, data []byte) Outcome {
	path, err := s.dialog.SaveFile(ctx, SaveRequest{
		Title:         dialogTitle,
		DefaultFolder: s.dir,
		DefaultName:   s.name,
		FilterName:    "Movies",
		Patterns:      []string{"*.mp4"},
	})
	if errors.Is(err, ErrCancelled) {
		s.logger.Info("save cancelled", "bytes", humanize.Bytes(uint64(len(data))))
		return Cancelled()
	}
	if err != nil {
		s.logger.Error("save dialog failed", "err", err)
		return Failed(err)
	}
	if path == "" {
		return Cancelled()
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	if err := s.writer.WriteFile(path, data); err != nil {
		s.logger.Error("write recording failed", "path", path, "err", err)
		return Failed(fmt.Errorf("write %s: %w", path, err))
	}
	s.logger.Info("recording saved", "path", path, "bytes", humanize.Bytes(uint64(len(data))))
	return Saved(path)
}

// StopRecording handles the stop-recording message: the recording indicator
// is cleared before the dialog opens, and the outcome is broadcast.
func (s *Service) StopRecording(ctx context.Context, data []byte) Outcome {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stop recording panic", "panic", r)
			s.notify().SaveStatus(Failed(fmt.Errorf("internal error: %v", r)))
		}
	}()
	s.EndRecordingNotice()
	outcome := s.PersistRecording(ctx, data)
	s.notify().SaveStatus(outcome)
	return outcome
}

// CancelRecording clears the recording indicator without persisting.
func (s *Service) CancelRecording() {
	s.logger.Info("recording cancelled")
	s.EndRecordingNotice()
}
