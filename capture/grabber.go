package capture

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"
)

type grabber struct {
	target    Target
	grab      GrabFunc
	interval  time.Duration
	queueSize int
	deliver   func([]byte)

	latest atomic.Pointer[image.RGBA]

	first    error
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once

	lastErrLog atomic.Int64
}

func newGrabber(target Target, opts Options, deliver func([]byte)) *grabber {
	return &grabber{
		target:    target,
		grab:      opts.Grab,
		interval:  time.Second / time.Duration(opts.FrameRate),
		queueSize: opts.QueueSize,
		deliver:   deliver,
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
}

// start launches the grab loop. The returned channel closes after the first
// grab attempt; firstErr reports its outcome.
func (g *grabber) start() <-chan struct{} {
	ready := make(chan struct{})
	go g.run(ready)
	return ready
}

func (g *grabber) firstErr() error { return g.first }

func (g *grabber) stop() {
	g.stopOnce.Do(func() {
		close(g.done)
		<-g.exited
	})
}

func (g *grabber) run(ready chan struct{}) {
	defer close(g.exited)
	readyClosed := false
	defer func() {
		if r := recover(); r != nil {
			captureDebug("grabber panic", "source_id", g.target.ID, "panic", r)
			if !readyClosed {
				g.first = fmt.Errorf("grabber panic: %v", r)
				close(ready)
			}
		}
	}()

	img, err := g.grabOnce()
	if err != nil {
		g.first = err
		readyClosed = true
		close(ready)
		return
	}
	g.publish(img, 1)
	readyClosed = true
	close(ready)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	started := time.Now()
	emitted := 1

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
		}

		img, err := g.grabOnce()
		if err != nil {
			if shouldLogEvery(&g.lastErrLog, time.Second) {
				captureDebug("grab failed", "source_id", g.target.ID, "err", err)
			}
			img = g.latest.Load()
		}

		// Repeat the frame when grabbing falls behind so the reader sees a
		// constant frame rate.
		due := int(time.Since(started)/g.interval) + 1
		n := min(max(due-emitted, 1), g.queueSize)
		g.publish(img, n)
		emitted = max(emitted+n, due-g.queueSize)
	}
}

func (g *grabber) grabOnce() (*image.RGBA, error) {
	img, err := g.grab(g.target.Bounds)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrNoFrame
	}
	return normalizeFrame(img, g.target.Bounds.Dx(), g.target.Bounds.Dy()), nil
}

func (g *grabber) publish(img *image.RGBA, repeat int) {
	if img == nil {
		return
	}
	g.latest.Store(img)
	for range repeat {
		g.deliver(img.Pix)
	}
}

// normalizeFrame returns img as a tightly packed w x h frame anchored at the
// origin, cropping or padding when the source changed size.
func normalizeFrame(img *image.RGBA, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Min == (image.Point{}) && b.Dx() == w && b.Dy() == h && img.Stride == 4*w {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
