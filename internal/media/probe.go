// Package media provides audio duration probing and temporary audio storage.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DecodeError indicates the input could not be parsed as an audio container.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode audio %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// runCommand abstracts process execution for testability.
type runCommand func(ctx context.Context, name string, args ...string) (string, error)

// Prober reads audio duration via ffprobe.
type Prober struct {
	ffprobePath string
	run         runCommand
}

// NewProber constructs a Prober using the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		run:         execRun,
	}
}

// NewProberForTests constructs a Prober with an injectable command runner.
func NewProberForTests(run runCommand) *Prober {
	return &Prober{ffprobePath: "ffprobe", run: run}
}

// ProbeDuration returns the play length of the audio file in seconds.
// Undecodable input yields a *DecodeError.
func (p *Prober) ProbeDuration(ctx context.Context, audioPath string) (float64, error) {
	out, err := p.run(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	)
	if err != nil {
		return 0, &DecodeError{Path: audioPath, Err: err}
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, &DecodeError{Path: audioPath, Err: fmt.Errorf("unexpected ffprobe output %q", strings.TrimSpace(out))}
	}
	if seconds < 0 {
		return 0, &DecodeError{Path: audioPath, Err: fmt.Errorf("negative duration %v", seconds)}
	}
	return seconds, nil
}

// execRun executes one command and returns its stdout.
func execRun(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %s: %w", name, msg, err)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), nil
}
