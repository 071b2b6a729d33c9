package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"speech-desk/internal/domain"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
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

// Exec runs a speaker segmentation binary and maps its turns onto
// transcript segments. The binary prints a JSON array of
// {start, end, speaker} objects on stdout.
type Exec struct {
	binaryPath string
	runner     commandRunner
}

// NewExec constructs the production diarizer around the given binary.
func NewExec(binaryPath string) *Exec {
	return &Exec{binaryPath: binaryPath, runner: &execRunner{}}
}

// Assign invokes the binary on the audio file and labels the segments.
func (e *Exec) Assign(ctx context.Context, audioPath string, segments []domain.Segment, opts domain.DiarizeOptions) ([]domain.Segment, error) {
	if e.binaryPath == "" {
		return nil, domain.NewJobError(domain.FailureDiarization, domain.JobStatusDiarizing,
			"diarization binary not configured", nil)
	}

	args := buildArgs(audioPath, opts)
	result, runErr := e.runner.Run(ctx, e.binaryPath, args...)
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, domain.NewJobError(domain.FailureCancelled, domain.JobStatusDiarizing,
				"diarization cancelled", ctx.Err())
		}
		return nil, domain.NewJobError(domain.FailureDiarization, domain.JobStatusDiarizing,
			fmt.Sprintf("diarization failed (exit=%d): %s", result.ExitCode, result.Stderr), runErr)
	}

	var turns []turn
	if err := json.Unmarshal([]byte(result.Stdout), &turns); err != nil {
		return nil, domain.NewJobError(domain.FailureDiarization, domain.JobStatusDiarizing,
			"diarization produced unreadable output", err)
	}

	return assignSpeakers(segments, turns), nil
}

// buildArgs assembles the segmentation CLI invocation.
func buildArgs(audioPath string, opts domain.DiarizeOptions) []string {
	args := []string{"--json", "-f", audioPath}
	if opts.Threshold > 0 {
		args = append(args, "--threshold", strconv.FormatFloat(opts.Threshold, 'f', -1, 64))
	}
	if opts.MaxSpeakers > 0 {
		args = append(args, "--max-speakers", strconv.Itoa(opts.MaxSpeakers))
	}
	return args
}
