package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "SCREENREC"

// Config holds the process configuration shared by the host and the UI.
type Config struct {
	// Recording configuration
	PathToFFmpeg  string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FrameRate     int    `envconfig:"FRAME_RATE" default:"30"`
	ThumbnailSize int    `envconfig:"THUMBNAIL_SIZE" default:"150"`

	// Save dialog configuration. An empty SaveDir means the user's Videos directory.
	DefaultFilename string `envconfig:"DEFAULT_FILENAME" default:"recording.mp4"`
	SaveDir         string `envconfig:"SAVE_DIR"`

	// IPC configuration
	BusName        string        `envconfig:"BUS_NAME" default:"app.go2tv.ScreenRec"`
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`

	// Logging configuration
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	DebugFile string `envconfig:"DEBUG_FILE"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Path of a UI binary the host spawns and waits on.
	LaunchUI string `envconfig:"LAUNCH_UI"`
}

// Load reads SCREENREC_* environment variables.
func Load() (*Config, error) {
	var config Config
	if err := envconfig.Process(envPrefix, &config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(config *Config) error {
	if strings.TrimSpace(config.PathToFFmpeg) == "" {
		return fmt.Errorf("FFMPEG_PATH is required")
	}
	if config.FrameRate < 1 || config.FrameRate > 60 {
		return fmt.Errorf("FRAME_RATE must be between 1 and 60")
	}
	if config.ThumbnailSize < 16 || config.ThumbnailSize > 512 {
		return fmt.Errorf("THUMBNAIL_SIZE must be between 16 and 512")
	}
	if strings.TrimSpace(config.DefaultFilename) == "" {
		return fmt.Errorf("DEFAULT_FILENAME is required")
	}
	if strings.ContainsRune(config.DefaultFilename, '/') {
		return fmt.Errorf("DEFAULT_FILENAME must be a file name, not a path")
	}
	if config.BusName == "" || !strings.Contains(config.BusName, ".") {
		return fmt.Errorf("BUS_NAME must be a well-known dbus name")
	}
	if config.ConnectTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT must be greater than 0")
	}
	switch config.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}

	return nil
}
