package encoder

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("mock ffmpeg is a shell script")
	}
	p, err := filepath.Abs(filepath.Join("testdata", "mock_ffmpeg.sh"))
	require.NoError(t, err)
	return p
}

type chunkSink struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (c *chunkSink) add(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, b)
}

func (c *chunkSink) joined() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.chunks, nil)
}

func newTestEncoder(t *testing.T) *Encoder {
	t.Helper()
	enc, err := New(&Options{FFmpegPath: mockFFmpeg(t), VideoCodec: "libx264", ChunkSize: 7})
	require.NoError(t, err)
	return enc
}

func frameInput(r io.ReadCloser) Input {
	return Input{Frames: r, Width: 4, Height: 2, FrameRate: 30, PixelFormat: "RGBA"}
}

func TestNewRequiresFFmpegPath(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Options{FFmpegPath: "  "})
	assert.Error(t, err)
}

func TestStartRejectsInvalidInput(t *testing.T) {
	enc := newTestEncoder(t)
	_, err := enc.Start(Input{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = enc.Start(Input{Frames: io.NopCloser(strings.NewReader("")), PixelFormat: "RGBA"}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSessionDeliversChunksInOrder(t *testing.T) {
	enc := newTestEncoder(t)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 64)

	var sink chunkSink
	s, err := enc.Start(frameInput(io.NopCloser(bytes.NewReader(payload))), sink.add)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("ffmpeg did not exit")
	}
	require.NoError(t, s.Err())
	assert.Equal(t, payload, sink.joined())
	assert.Equal(t, int64(len(payload)), s.BytesOut())
	for _, c := range sink.chunks {
		assert.NotEmpty(t, c)
		assert.LessOrEqual(t, len(c), 7)
	}
}

func TestSessionStopFinalizes(t *testing.T) {
	enc := newTestEncoder(t)
	pr, pw := io.Pipe()

	var sink chunkSink
	s, err := enc.Start(frameInput(pr), sink.add)
	require.NoError(t, err)

	_, err = pw.Write([]byte("frame-one"))
	require.NoError(t, err)
	_, err = pw.Write([]byte("frame-two"))
	require.NoError(t, err)

	require.NoError(t, s.Stop(t.Context()))
	assert.Equal(t, "frame-oneframe-two", string(sink.joined()))

	// Further writes fail because Stop closed the frame reader.
	_, err = pw.Write([]byte("late"))
	assert.Error(t, err)
}

func TestSessionReportsExitFailure(t *testing.T) {
	t.Setenv("MOCK_FFMPEG_FAIL", "boom")
	enc := newTestEncoder(t)
	pr, _ := io.Pipe()

	s, err := enc.Start(frameInput(pr), nil)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("ffmpeg did not exit")
	}
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "mock ffmpeg: boom")
	assert.Contains(t, s.StderrTail(100), "boom")
}

func TestBuildArgsFragmentedMP4(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	t.Setenv("MOCK_FFMPEG_ARGS_FILE", argsFile)
	enc := newTestEncoder(t)

	s, err := enc.Start(frameInput(io.NopCloser(strings.NewReader("x"))), nil)
	require.NoError(t, err)
	<-s.Done()

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	got := strings.Join(strings.Fields(string(raw)), " ")
	assert.Contains(t, got, "-f rawvideo -pix_fmt rgba -s 4x2 -r 30 -i pipe:0")
	assert.Contains(t, got, "-c:v libx264")
	assert.Contains(t, got, "-movflags frag_keyframe+empty_moov+default_base_moof -f mp4 pipe:1")
}

func TestTargetFPSCapsHighResolution(t *testing.T) {
	assert.Equal(t, uint32(60), targetFPS(Input{Width: 1280, Height: 720, FrameRate: 60}))
	assert.Equal(t, uint32(30), targetFPS(Input{Width: 3840, Height: 2160, FrameRate: 60}))
	assert.Equal(t, uint32(60), targetFPS(Input{Width: 640, Height: 480}))
}

func TestSelectVideoEncoderFallsBackToSoftware(t *testing.T) {
	plan := selectVideoEncoder(mockFFmpeg(t), baseVideoFilter, nil)
	assert.Equal(t, "libx264", plan.codec)
	assert.False(t, plan.hardware)
}

func TestParseEncoderList(t *testing.T) {
	out := []byte("Encoders:\n V..... = Video\n ------\n V....D libx264  H.264\n A....D aac  AAC\n")
	got := parseEncoderList(out)
	assert.Contains(t, got, "libx264")
	assert.NotContains(t, got, "aac")
}

func TestPrepareUsesForcedCodec(t *testing.T) {
	enc := newTestEncoder(t)
	assert.Equal(t, "libx264", enc.Prepare())
	assert.Equal(t, "libx264", enc.Prepare())
}
