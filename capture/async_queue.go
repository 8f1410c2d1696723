package capture

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const defaultVideoQueue = 4

type asyncPipeWriter struct {
	sourceID string
	kind     string
	dst      *io.PipeWriter

	queue chan []byte
	done  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	lastSlowLog atomic.Int64
	lastDropLog atomic.Int64
	dropped     atomic.Uint64
}

func newAsyncPipeWriter(sourceID, kind string, dst *io.PipeWriter, queueSize int) *asyncPipeWriter {
	if dst == nil || queueSize <= 0 {
		return nil
	}
	w := &asyncPipeWriter{
		sourceID: sourceID,
		kind:     kind,
		dst:      dst,
		queue:    make(chan []byte, queueSize),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *asyncPipeWriter) Enqueue(frame []byte) {
	if w == nil || len(frame) == 0 {
		return
	}

	select {
	case <-w.done:
		return
	default:
	}

	select {
	case w.queue <- frame:
		return
	default:
	}

	// Queue full: drop the oldest frame so the grabber never blocks.
	select {
	case <-w.queue:
		w.noteDrop()
	default:
	}

	select {
	case w.queue <- frame:
	default:
		w.noteDrop()
	}
}

func (w *asyncPipeWriter) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

func (w *asyncPipeWriter) noteDrop() {
	total := w.dropped.Add(1)
	if shouldLogEvery(&w.lastDropLog, time.Second) {
		captureDebug("dropped frame", "source_id", w.sourceID, "kind", w.kind, "total", total, "queue", len(w.queue))
	}
}

func (w *asyncPipeWriter) Close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

func (w *asyncPipeWriter) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case b := <-w.queue:
			start := time.Now()
			if _, err := w.dst.Write(b); err != nil {
				captureDebug("write failed", "source_id", w.sourceID, "kind", w.kind, "err", err)
				return
			}
			d := time.Since(start)
			if d > 50*time.Millisecond && shouldLogEvery(&w.lastSlowLog, time.Second) {
				captureDebug("slow write",
					"source_id", w.sourceID,
					"kind", w.kind,
					"duration", d,
					"bytes", len(b),
					"queue", len(w.queue),
				)
			}
		}
	}
}
