package encoder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go2tv.app/screenrec/internal/processutil"
)

const (
	encoderProbeTimeout = 5 * time.Second
	// Encoders reject odd dimensions for yuv420p.
	baseVideoFilter = "scale=trunc(iw/2)*2:trunc(ih/2)*2"
)

type videoEncoderPlan struct {
	label       string
	codec       string
	hardware    bool
	globalArgs  []string
	videoFilter string
	codecArgs   []string
}

func selectVideoEncoder(ffmpegPath, baseFilter string, logOutput io.Writer) videoEncoderPlan {
	if _, err := exec.LookPath(ffmpegPath); err != nil {
		encoderDebug("encoder probe: ffmpeg lookup failed", "path", ffmpegPath, "err", err)
		plan := softwareEncoderPlan("libx264", baseFilter)
		reportEncoderSelection(logOutput, plan, "ffmpeg_not_found")
		return plan
	}

	available, encErr := ffmpegEncoderSet(ffmpegPath)
	if encErr != nil {
		encoderDebug("encoder probe: ffmpeg -encoders failed", "err", encErr)
	}
	has := func(codec string) bool {
		if len(available) == 0 {
			return true
		}
		_, ok := available[codec]
		return ok
	}

	for _, candidate := range hardwareEncoderCandidates(baseFilter) {
		if !has(candidate.codec) {
			encoderDebug("encoder probe: skip", "encoder", candidate.label, "reason", "not_in_ffmpeg_encoder_list")
			continue
		}
		if err := probeVideoEncoder(ffmpegPath, candidate); err != nil {
			encoderDebug("encoder probe: failed", "encoder", candidate.label, "err", err)
			continue
		}
		reportEncoderSelection(logOutput, candidate, "")
		return candidate
	}

	// mpeg4 ships with every ffmpeg build; libx264 may be missing.
	for _, codec := range []string{"libx264", "libopenh264", "mpeg4"} {
		if has(codec) {
			plan := softwareEncoderPlan(codec, baseFilter)
			reportEncoderSelection(logOutput, plan, "no_hardware_encoder")
			return plan
		}
	}
	plan := softwareEncoderPlan("mpeg4", baseFilter)
	reportEncoderSelection(logOutput, plan, "no_known_software_encoder")
	return plan
}

func ffmpegEncoderSet(ffmpegPath string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), encoderProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	processutil.HideConsoleWindow(cmd)
	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffmpeg -encoders timeout after %s", encoderProbeTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders failed: %w", err)
	}
	return parseEncoderList(out), nil
}

// parseEncoderList reads `ffmpeg -encoders` output, where each row is
// " V..... name description".
func parseEncoderList(out []byte) map[string]struct{} {
	encoders := make(map[string]struct{})
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		if strings.HasPrefix(fields[0], "V") {
			encoders[fields[1]] = struct{}{}
		}
	}
	return encoders
}

func reportEncoderSelection(logOutput io.Writer, plan videoEncoderPlan, reason string) {
	mode := "software"
	if plan.hardware {
		mode = "hardware"
	}
	if logOutput != nil {
		_, _ = fmt.Fprintf(logOutput, "screenrec video encoder: %s (%s)\n", plan.label, mode)
	}
	encoderDebug("encoder selected", "encoder", plan.label, "mode", mode, "reason", reason)
}

func probeVideoEncoder(ffmpegPath string, plan videoEncoderPlan) error {
	ctx, cancel := context.WithTimeout(context.Background(), encoderProbeTimeout)
	defer cancel()

	args := []string{"-v", "error", "-nostdin"}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:r=30:d=0.5",
		"-an",
		"-frames:v", "8",
	)
	if strings.TrimSpace(plan.videoFilter) != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	args = append(args, "-f", "null", "-")

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	processutil.HideConsoleWindow(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("probe timeout after %s", encoderProbeTimeout)
	}
	if err != nil {
		return fmt.Errorf("probe failed: %w: %s", err, tailString(strings.TrimSpace(stderr.String()), 240))
	}
	return nil
}

func hardwareEncoderCandidates(baseFilter string) []videoEncoderPlan {
	switch runtime.GOOS {
	case "darwin":
		return []videoEncoderPlan{
			hardwareEncoderPlan("h264_videotoolbox", "h264_videotoolbox", nil, baseFilter+",format=yuv420p"),
		}
	case "windows":
		return []videoEncoderPlan{
			hardwareEncoderPlan("h264_nvenc", "h264_nvenc", nil, baseFilter+",format=yuv420p"),
			hardwareEncoderPlan("h264_amf", "h264_amf", nil, baseFilter+",format=yuv420p"),
			hardwareEncoderPlan("h264_qsv", "h264_qsv", nil, baseFilter+",format=nv12"),
		}
	default:
		candidates := []videoEncoderPlan{
			hardwareEncoderPlan("h264_nvenc", "h264_nvenc", nil, baseFilter+",format=yuv420p"),
		}
		devices, err := filepath.Glob("/dev/dri/renderD*")
		if err == nil {
			for _, dev := range devices {
				label := fmt.Sprintf("h264_vaapi (%s)", dev)
				candidates = append(candidates, hardwareEncoderPlan("h264_vaapi", label, []string{"-vaapi_device", dev}, baseFilter+",format=nv12,hwupload"))
			}
		}
		return candidates
	}
}

func hardwareEncoderPlan(codec, label string, globalArgs []string, filter string) videoEncoderPlan {
	return videoEncoderPlan{
		label:       label,
		codec:       codec,
		hardware:    true,
		globalArgs:  append([]string(nil), globalArgs...),
		videoFilter: filter,
		codecArgs: []string{
			"-c:v", codec,
			"-b:v", "8000k",
			"-maxrate", "10000k",
			"-bufsize", "16000k",
		},
	}
}

func softwareEncoderPlan(codec, baseFilter string) videoEncoderPlan {
	args := []string{"-c:v", codec, "-pix_fmt", "yuv420p"}
	switch codec {
	case "libx264":
		args = append(args, "-preset", "veryfast", "-crf", "23")
	case "mpeg4":
		args = append(args, "-q:v", "3")
	}
	return videoEncoderPlan{
		label:       codec,
		codec:       codec,
		videoFilter: baseFilter,
		codecArgs:   args,
	}
}

// forcedEncoderPlan trusts a configured codec name without probing.
func forcedEncoderPlan(codec, baseFilter string) videoEncoderPlan {
	return softwareEncoderPlan(codec, baseFilter)
}

func tailString(input string, max int) string {
	if input == "" {
		return "no ffmpeg stderr output"
	}
	if max <= 0 || len(input) <= max {
		return input
	}
	return input[len(input)-max:]
}
