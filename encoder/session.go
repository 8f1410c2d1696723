package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenrec/internal/processutil"
)

// Session is one running ffmpeg process.
type Session struct {
	cmd     *exec.Cmd
	frames  io.ReadCloser
	stdin   io.WriteCloser
	stderr  *lockedBuffer
	onChunk func([]byte)

	done        chan struct{}
	exitErr     error
	stopTimeout time.Duration

	bytesOut  atomic.Int64
	stopping  atomic.Bool
	stopOnce  sync.Once
	closeOnce sync.Once
}

// Start launches ffmpeg reading in.Frames. onChunk receives each non-empty
// piece of encoded output, in order, from a single goroutine.
func (e *Encoder) Start(in Input, onChunk func([]byte)) (*Session, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if onChunk == nil {
		onChunk = func([]byte) {}
	}

	plan := e.videoPlan()
	args := buildArgs(in, plan)

	stderrBuf := &lockedBuffer{}
	stderrWriter := io.Writer(stderrBuf)
	if e.opts.LogOutput != nil {
		stderrWriter = io.MultiWriter(e.opts.LogOutput, stderrWriter)
	}
	if e.opts.DebugCommand {
		out := e.opts.LogOutput
		if out == nil {
			out = os.Stderr
		}
		_, _ = fmt.Fprintf(out, "screenrec ffmpeg: %s %s\n", e.opts.FFmpegPath, strings.Join(args, " "))
	}
	encoderDebug("ffmpeg start", "encoder", plan.label, "args", strings.Join(args, " "))

	cmd := exec.Command(e.opts.FFmpegPath, args...)
	cmd.Stderr = stderrWriter
	processutil.HideConsoleWindow(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	s := &Session{
		cmd:         cmd,
		frames:      in.Frames,
		stdin:       stdin,
		stderr:      stderrBuf,
		onChunk:     onChunk,
		done:        make(chan struct{}),
		stopTimeout: e.opts.StopTimeout,
	}

	go s.copyFrames()
	go s.readOutput(stdout, e.opts.ChunkSize)
	return s, nil
}

func buildArgs(in Input, plan videoEncoderPlan) []string {
	inFPS := in.FrameRate
	if inFPS == 0 {
		inFPS = defaultMaxFrameRate
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", strings.ToLower(in.PixelFormat),
		"-s", fmt.Sprintf("%dx%d", in.Width, in.Height),
		"-r", strconv.FormatUint(uint64(inFPS), 10),
		"-i", "pipe:0",
		"-an",
		"-r", strconv.FormatUint(uint64(targetFPS(in)), 10),
	)
	if strings.TrimSpace(plan.videoFilter) != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	return append(args,
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		"pipe:1",
	)
}

func (s *Session) copyFrames() {
	defer s.frames.Close()
	defer s.stdin.Close()
	n, err := io.Copy(s.stdin, s.frames)
	if err != nil && !s.stopping.Load() {
		encoderDebug("frame copy ended", "bytes", n, "err", err)
	}
}

func (s *Session) readOutput(stdout io.Reader, chunkSize int) {
	buf := make([]byte, chunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.bytesOut.Add(int64(n))
			s.onChunk(chunk)
		}
		if err != nil {
			break
		}
	}
	// Wait closes stdout, so it only runs after the output is drained.
	err := s.cmd.Wait()
	if err != nil && !s.stopping.Load() {
		err = fmt.Errorf("ffmpeg exited: %w: %s", err, s.stderr.Tail(300))
	} else if err != nil {
		err = fmt.Errorf("ffmpeg finalize: %w: %s", err, s.stderr.Tail(300))
	}
	s.exitErr = err
	close(s.done)
}

// Done is closed once ffmpeg has exited and all output was delivered.
func (s *Session) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

// Err reports the exit error. It is valid after Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.exitErr
	default:
		return nil
	}
}

// BytesOut reports the encoded bytes delivered so far.
func (s *Session) BytesOut() int64 { return s.bytesOut.Load() }

func (s *Session) StderrTail(n int) string {
	if s == nil || s.stderr == nil {
		return ""
	}
	return s.stderr.Tail(n)
}

// Stop ends the frame input and waits for ffmpeg to flush the container and
// exit. If ctx expires first the process is killed.
func (s *Session) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var timeout <-chan time.Time
	if _, ok := ctx.Deadline(); !ok {
		t := time.NewTimer(s.stopTimeout)
		defer t.Stop()
		timeout = t.C
	}
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		_ = s.frames.Close()
	})
	select {
	case <-s.done:
		return s.exitErr
	case <-ctx.Done():
		_ = s.Close()
		return fmt.Errorf("%w: %w", ErrStopped, ctx.Err())
	case <-timeout:
		_ = s.Close()
		return fmt.Errorf("%w: finalize timed out after %s", ErrStopped, s.stopTimeout)
	}
}

// Close kills ffmpeg without waiting for finalization.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var out error
	s.closeOnce.Do(func() {
		s.stopping.Store(true)
		out = errors.Join(out, s.frames.Close())
		if s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				out = errors.Join(out, err)
			}
		}
	})
	return out
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return tailString(strings.TrimSpace(b.buf.String()), n)
}
