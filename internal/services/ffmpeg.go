package services

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// FFprobe
// Reads container metadata of synthesized audio so finished generations can
// report their length.
// ---------------------------------------------------------------------------

type FFprobe struct {
	binary string
	output func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewFFprobe() *FFprobe {
	return &FFprobe{
		binary: "ffprobe",
		output: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// AudioDuration returns the duration of an audio file.
func (p *FFprobe) AudioDuration(ctx context.Context, audioPath string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	}

	output, err := p.output(ctx, p.binary, args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return time.Duration(durationSec * float64(time.Second)), nil
}
