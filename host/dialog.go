package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"go2tv.app/screenrec/portal"
)

var ErrCancelled = errors.New("save dialog cancelled")

// SaveRequest describes the save dialog to show.
type SaveRequest struct {
	Title         string
	DefaultFolder string
	DefaultName   string
	FilterName    string
	Patterns      []string
}

// Dialog asks the user for a destination path. A dismissal returns
// ErrCancelled.
type Dialog interface {
	SaveFile(ctx context.Context, req SaveRequest) (string, error)
}

// PortalDialog shows the desktop's native save dialog through
// xdg-desktop-portal.
type PortalDialog struct {
	Chooser *portal.FileChooser
}

func (d PortalDialog) SaveFile(ctx context.Context, req SaveRequest) (string, error) {
	path, err := d.Chooser.SaveFile(ctx, &portal.SaveFileOptions{
		Title:         req.Title,
		CurrentName:   req.DefaultName,
		CurrentFolder: req.DefaultFolder,
		Filters:       []portal.Filter{portal.GlobFilter(req.FilterName, req.Patterns...)},
		Modal:         true,
	})
	return path, dialogError(err)
}

// dialogError maps a user dismissal to ErrCancelled. Any other portal
// failure stays an error so the save is reported as failed.
func dialogError(err error) error {
	if errors.Is(err, portal.ErrCancelled) {
		return ErrCancelled
	}
	return err
}

// Writer stores a recording at path, replacing any existing file.
type Writer interface {
	WriteFile(path string, data []byte) error
}

type FileWriter struct{}

func (FileWriter) WriteFile(path string, data []byte) error {
	return os.WriteFile(filepath.Clean(path), data, 0o644)
}
