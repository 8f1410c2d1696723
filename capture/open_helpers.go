package capture

import (
	"context"
	"fmt"
	"time"
)

const defaultFirstFrameTimeout = 8 * time.Second

func validateOpenOptions(target Target, options *Options) (Options, error) {
	opts := Options{}
	if options != nil {
		opts = *options
	}
	if target.Bounds.Dx() <= 0 || target.Bounds.Dy() <= 0 {
		return opts, fmt.Errorf("%w: empty bounds for %q", ErrInvalidOptions, target.ID)
	}
	if opts.FrameRate == 0 {
		opts.FrameRate = defaultFrameRate
	}
	if opts.FrameRate < 0 || opts.FrameRate > maxFrameRate {
		return opts, fmt.Errorf("%w: FrameRate must be in 1..%d", ErrInvalidOptions, maxFrameRate)
	}
	if opts.QueueSize < 0 {
		return opts, fmt.Errorf("%w: QueueSize must be >= 0", ErrInvalidOptions)
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = defaultVideoQueue
	}
	if opts.Grab == nil {
		opts.Grab = ScreenGrab
	}
	return opts, nil
}

func waitForFirstFrame(ctx context.Context, sourceID string, ready <-chan struct{}, onTimeout func() error) error {
	timer := time.NewTimer(defaultFirstFrameTimeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		if onTimeout != nil {
			_ = onTimeout()
		}
		return ctx.Err()
	case <-timer.C:
		if onTimeout != nil {
			_ = onTimeout()
		}
		return fmt.Errorf("%w: %s timed out waiting for first frame", ErrNoFrame, sourceID)
	}
}
