package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/transcribe/api-go/internal/model"
)

// NormalizedName is the file written next to the source by Preprocess. It is
// dot-prefixed because uploads never are.
const NormalizedName = ".processed_audio.wav"

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// FFmpeg converts arbitrary input media to the mono 16kHz loudness
// normalised PCM WAV the recognizer expects.
type FFmpeg struct {
	Path   string
	runner commandRunner
}

func NewFFmpeg(path string) *FFmpeg {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, runner: execRunner{}}
}

// Preprocess writes NormalizedName beside audioPath and returns its path.
func (f *FFmpeg) Preprocess(ctx context.Context, audioPath string) (string, error) {
	if strings.TrimSpace(audioPath) == "" {
		return "", fmt.Errorf("%w: input audio path is required", model.ErrPreprocessing)
	}
	out := filepath.Join(filepath.Dir(audioPath), NormalizedName)
	if filepath.Clean(audioPath) == out {
		return "", fmt.Errorf("%w: input %s would be overwritten by its own output", model.ErrPreprocessing, audioPath)
	}
	if err := f.run(ctx, normalizeArgs(audioPath, out)); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrPreprocessing, err)
	}
	return out, nil
}

// ExtractSegment copies the [start,end) second range of src into dst
// without re-encoding.
func (f *FFmpeg) ExtractSegment(ctx context.Context, src, dst string, start, end float64) error {
	if start < 0 || end <= start {
		return fmt.Errorf("invalid segment range %.3f-%.3f", start, end)
	}
	return f.run(ctx, segmentArgs(src, dst, start, end))
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	res, err := f.runner.Run(ctx, f.Path, args...)
	if err != nil {
		stderr := strings.TrimSpace(res.Stderr)
		if stderr == "" {
			return fmt.Errorf("ffmpeg (exit %d): %w", res.ExitCode, err)
		}
		return fmt.Errorf("ffmpeg (exit %d): %s", res.ExitCode, lastLines(stderr, 5))
	}
	return nil
}

func normalizeArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		"-af", "dynaudnorm",
		out,
	}
}

func segmentArgs(src, dst string, start, end float64) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", src,
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-to", strconv.FormatFloat(end, 'f', 3, 64),
		"-c", "copy",
		dst,
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
