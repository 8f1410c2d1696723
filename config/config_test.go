package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr bool
		wantCfg *Config
	}{
		{
			name: "defaults (no env set)",
			env:  map[string]string{},
			wantCfg: &Config{
				PathToFFmpeg:    "ffmpeg",
				FrameRate:       30,
				ThumbnailSize:   150,
				DefaultFilename: "recording.mp4",
				BusName:         "app.go2tv.ScreenRec",
				ConnectTimeout:  10 * time.Second,
				LogFormat:       "text",
			},
		},
		{
			name: "custom valid env",
			env: map[string]string{
				"SCREENREC_FFMPEG_PATH":      "/usr/local/bin/ffmpeg",
				"SCREENREC_FRAME_RATE":       "24",
				"SCREENREC_THUMBNAIL_SIZE":   "200",
				"SCREENREC_DEFAULT_FILENAME": "clip.mp4",
				"SCREENREC_SAVE_DIR":         "/tmp",
				"SCREENREC_BUS_NAME":         "org.example.Rec",
				"SCREENREC_CONNECT_TIMEOUT":  "2s",
				"SCREENREC_DEBUG":            "true",
				"SCREENREC_DEBUG_FILE":       "/tmp/screenrec.log",
				"SCREENREC_LOG_FORMAT":       "json",
				"SCREENREC_LAUNCH_UI":        "/usr/bin/screenrec",
			},
			wantCfg: &Config{
				PathToFFmpeg:    "/usr/local/bin/ffmpeg",
				FrameRate:       24,
				ThumbnailSize:   200,
				DefaultFilename: "clip.mp4",
				SaveDir:         "/tmp",
				BusName:         "org.example.Rec",
				ConnectTimeout:  2 * time.Second,
				Debug:           true,
				DebugFile:       "/tmp/screenrec.log",
				LogFormat:       "json",
				LaunchUI:        "/usr/bin/screenrec",
			},
		},
		{
			name:    "frame rate too high",
			env:     map[string]string{"SCREENREC_FRAME_RATE": "61"},
			wantErr: true,
		},
		{
			name:    "frame rate zero",
			env:     map[string]string{"SCREENREC_FRAME_RATE": "0"},
			wantErr: true,
		},
		{
			name:    "thumbnail too small",
			env:     map[string]string{"SCREENREC_THUMBNAIL_SIZE": "8"},
			wantErr: true,
		},
		{
			name:    "filename with directory",
			env:     map[string]string{"SCREENREC_DEFAULT_FILENAME": "a/b.mp4"},
			wantErr: true,
		},
		{
			name:    "bad log format",
			env:     map[string]string{"SCREENREC_LOG_FORMAT": "xml"},
			wantErr: true,
		},
		{
			name:    "unparsable timeout",
			env:     map[string]string{"SCREENREC_CONNECT_TIMEOUT": "soon"},
			wantErr: true,
		},
		{
			name:    "empty ffmpeg path",
			env:     map[string]string{"SCREENREC_FFMPEG_PATH": " "},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantCfg, cfg)
		})
	}
}
