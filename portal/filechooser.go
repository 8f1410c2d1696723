// Package portal asks xdg-desktop-portal for a save location, so the host
// process can show a native dialog without a toolkit of its own.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenrec/internal/apis"
	"go2tv.app/screenrec/internal/convert"
	"go2tv.app/screenrec/internal/request"
	"go2tv.app/screenrec/internal/token"
)

const (
	interfaceName = apis.CallBaseName + ".FileChooser"
	saveFileName  = interfaceName + ".SaveFile"
	tokenPrefix   = "screenrec"
)

var (
	ErrCancelled = errors.New("file chooser was cancelled")
	// ErrEnded reports a request the portal ended without a user choice,
	// such as a backend failure.
	ErrEnded       = errors.New("portal ended the file chooser request")
	ErrNoFile      = errors.New("file chooser returned no file")
	ErrUnavailable = errors.New("file chooser portal unavailable")
)

type Filter = convert.Filter

type FilterPattern = convert.FilterPattern

// GlobFilter builds a filter matching the given glob patterns.
func GlobFilter(name string, globs ...string) Filter {
	f := Filter{Name: name}
	for _, g := range globs {
		f.Patterns = append(f.Patterns, FilterPattern{Kind: 0, Pattern: g})
	}
	return f
}

type SaveFileOptions struct {
	Title         string
	ParentWindow  string
	CurrentName   string
	CurrentFolder string
	Filters       []Filter
	Modal         bool
	HandleToken   string
}

// FileChooser calls org.freedesktop.portal.FileChooser on conn.
type FileChooser struct {
	conn *dbus.Conn
}

func NewFileChooser(conn *dbus.Conn) *FileChooser {
	return &FileChooser{conn: conn}
}

// SaveFile shows a save dialog and returns the chosen absolute path. A user
// dismissal yields ErrCancelled.
func (f *FileChooser) SaveFile(ctx context.Context, options *SaveFileOptions) (string, error) {
	opts := SaveFileOptions{}
	if options != nil {
		opts = *options
	}
	if opts.HandleToken == "" {
		opts.HandleToken = token.Generate(tokenPrefix)
	}
	if _, err := f.Version(ctx); err != nil {
		return "", err
	}

	pending, err := request.Subscribe(f.conn, request.Path(f.conn.Names()[0], opts.HandleToken))
	if err != nil {
		return "", fmt.Errorf("subscribe to portal response: %w", err)
	}

	result, err := apis.Call(ctx, f.conn, saveFileName, opts.ParentWindow, opts.Title, saveFileData(opts))
	if err != nil {
		pending.Close()
		return "", fmt.Errorf("portal SaveFile: %w", err)
	}
	requestPath, ok := result.(dbus.ObjectPath)
	if !ok {
		pending.Close()
		return "", fmt.Errorf("SaveFile returned unexpected type %T", result)
	}
	if err := pending.Retarget(requestPath); err != nil {
		pending.Close()
		return "", err
	}

	status, results, err := pending.Wait(ctx)
	if err != nil {
		return "", err
	}
	if err := responseError(status); err != nil {
		return "", err
	}
	return pathFromResults(results)
}

// Version reads the FileChooser interface version. A desktop without the
// portal backend yields ErrUnavailable.
func (f *FileChooser) Version(ctx context.Context) (uint32, error) {
	v, err := apis.GetProperty(ctx, f.conn, interfaceName, "version")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return parseVersion(v)
}

func parseVersion(v any) (uint32, error) {
	version, ok := v.(uint32)
	if !ok {
		return 0, fmt.Errorf("%w: version has type %T", ErrUnavailable, v)
	}
	if version == 0 {
		return 0, fmt.Errorf("%w: version 0", ErrUnavailable)
	}
	return version, nil
}

func responseError(status request.ResponseStatus) error {
	switch status {
	case request.Success:
		return nil
	case request.Cancelled:
		return ErrCancelled
	case request.Ended:
		return ErrEnded
	default:
		return fmt.Errorf("%w: response status %d", ErrEnded, status)
	}
}

func saveFileData(opts SaveFileOptions) map[string]dbus.Variant {
	data := map[string]dbus.Variant{
		"handle_token": convert.FromString(opts.HandleToken),
	}
	if opts.Modal {
		data["modal"] = convert.FromBool(true)
	}
	if opts.CurrentName != "" {
		data["current_name"] = convert.FromString(opts.CurrentName)
	}
	if opts.CurrentFolder != "" {
		data["current_folder"] = convert.FromPath(opts.CurrentFolder)
	}
	if len(opts.Filters) > 0 {
		data["filters"] = convert.FromFilters(opts.Filters)
		data["current_filter"] = dbus.MakeVariant(opts.Filters[0])
	}
	return data
}

func pathFromResults(results map[string]dbus.Variant) (string, error) {
	v, ok := results["uris"]
	if !ok {
		return "", ErrNoFile
	}
	uris, ok := v.Value().([]string)
	if !ok {
		return "", fmt.Errorf("uris has unexpected type %T", v.Value())
	}
	if len(uris) == 0 {
		return "", ErrNoFile
	}
	return pathFromURI(uris[0])
}

func pathFromURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", raw, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", ErrNoFile
	}
	return filepath.Clean(u.Path), nil
}
