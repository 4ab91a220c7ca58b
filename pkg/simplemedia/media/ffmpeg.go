package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// FFmpeg drives the ffmpeg and ffprobe binaries as black-box tools over
// local files. Playback output is H.264/AAC mp4 at a fixed bitrate and
// preset.
type FFmpeg struct {
	// FFmpegPath and FFprobePath override binary lookup, for tests and
	// containers with non-standard layouts.
	FFmpegPath  string
	FFprobePath string
	// VideoBitrate is the playback transcode target (ffmpeg -b:v syntax).
	VideoBitrate string
	// Preset is the x264 encode preset.
	Preset string
}

// NewFFmpeg returns a transcoder using binaries from PATH and the standard
// playback parameters.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		VideoBitrate: "2000k",
		Preset:       "medium",
	}
}

// Transcode produces the standard playback rendition.
func (f *FFmpeg) Transcode(ctx context.Context, inputPath, outputPath string) error {
	return f.run(ctx,
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", f.Preset,
		"-b:v", f.VideoBitrate,
		"-c:a", "aac",
		"-movflags", "+faststart",
		outputPath,
	)
}

// ExtractFrame grabs a single frame at the given offset as a JPEG.
func (f *FFmpeg) ExtractFrame(ctx context.Context, inputPath string, at time.Duration, outputPath string) error {
	return f.run(ctx,
		"-y",
		"-ss", formatSeconds(at),
		"-i", inputPath,
		"-frames:v", "1",
		outputPath,
	)
}

// Clip cuts a silent clip of the given duration from the start.
func (f *FFmpeg) Clip(ctx context.Context, inputPath string, duration time.Duration, outputPath string) error {
	return f.run(ctx,
		"-y",
		"-i", inputPath,
		"-t", formatSeconds(duration),
		"-an",
		"-c:v", "libx264",
		"-preset", f.Preset,
		"-b:v", f.VideoBitrate,
		outputPath,
	)
}

// Probe extracts duration and dimensions from actual bytes via ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (simplemedia.MediaProbe, error) {
	out, err := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "csv=p=0:s=x",
		inputPath,
	).Output()
	if err != nil {
		return simplemedia.MediaProbe{}, fmt.Errorf("ffprobe %s: %w", inputPath, err)
	}

	probe := simplemedia.MediaProbe{}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Split(strings.TrimSpace(line), "x")
		switch len(fields) {
		case 2:
			probe.Width, _ = strconv.Atoi(fields[0])
			probe.Height, _ = strconv.Atoi(fields[1])
		case 1:
			seconds, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return simplemedia.MediaProbe{}, fmt.Errorf("parse duration %q: %w", fields[0], err)
			}
			probe.Duration = time.Duration(seconds * float64(time.Second))
		}
	}
	return probe, nil
}

func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.FFmpegPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", strings.Join(args, " "), err, lastLine(stderr.String()))
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
