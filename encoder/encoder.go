// Package encoder turns raw capture frames into a fragmented MP4 byte stream
// by piping them through ffmpeg.
package encoder

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	defaultChunkSize    = 64 << 10
	defaultStopTimeout  = 15 * time.Second
	defaultMaxFrameRate = 60
	defaultHighResCap   = 30
)

var (
	ErrInvalidInput = errors.New("invalid encoder input")
	ErrStopped      = errors.New("encoder stopped")
)

// Options configures an Encoder.
type Options struct {
	FFmpegPath string
	// VideoCodec forces an ffmpeg encoder and skips probing.
	VideoCodec string
	// ChunkSize is the largest chunk handed to the chunk callback.
	ChunkSize int
	// StopTimeout bounds finalization when the Stop context has no deadline.
	StopTimeout time.Duration
	// LogOutput mirrors ffmpeg stderr.
	LogOutput    io.Writer
	DebugCommand bool
}

// Input is a raw frame source with its geometry.
type Input struct {
	Frames      io.ReadCloser
	Width       uint32
	Height      uint32
	FrameRate   uint32
	PixelFormat string
}

// Encoder launches ffmpeg sessions. The video encoder is probed once and
// reused for every session.
type Encoder struct {
	opts Options

	planOnce sync.Once
	plan     videoEncoderPlan
}

func New(options *Options) (*Encoder, error) {
	opts, err := normalizeOptions(options)
	if err != nil {
		return nil, err
	}
	return &Encoder{opts: opts}, nil
}

func normalizeOptions(options *Options) (Options, error) {
	if options == nil {
		return Options{}, errors.New("nil options")
	}
	if strings.TrimSpace(options.FFmpegPath) == "" {
		return Options{}, errors.New("ffmpeg path is required")
	}
	opts := *options
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	return opts, nil
}

func validateInput(in Input) error {
	if in.Frames == nil {
		return fmt.Errorf("%w: nil frame reader", ErrInvalidInput)
	}
	if in.Width == 0 || in.Height == 0 {
		return fmt.Errorf("%w: empty frame size %dx%d", ErrInvalidInput, in.Width, in.Height)
	}
	if in.PixelFormat == "" {
		return fmt.Errorf("%w: missing pixel format", ErrInvalidInput)
	}
	return nil
}

// Prepare probes the video encoder so the first Start does not pay for it.
// It is safe to call concurrently with Start.
func (e *Encoder) Prepare() string { return e.videoPlan().label }

func (e *Encoder) videoPlan() videoEncoderPlan {
	e.planOnce.Do(func() {
		if e.opts.VideoCodec != "" {
			e.plan = forcedEncoderPlan(e.opts.VideoCodec, baseVideoFilter)
			return
		}
		e.plan = selectVideoEncoder(e.opts.FFmpegPath, baseVideoFilter, e.opts.LogOutput)
	})
	return e.plan
}

func targetFPS(in Input) uint32 {
	fps := in.FrameRate
	if fps == 0 || fps > defaultMaxFrameRate {
		fps = defaultMaxFrameRate
	}
	if in.Width*in.Height > 1920*1080 && fps > defaultHighResCap {
		fps = defaultHighResCap
	}
	return fps
}
