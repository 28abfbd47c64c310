package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/scribeq/scribeq/internal/job"
)

// ErrCancelled reports that the job's cancel token was observed set at a
// checkpoint. Not a failure: the caller sends a cancellation notice instead
// of the generic error message.
var ErrCancelled = errors.New("transcription cancelled")

// ErrTimeout reports that the polling budget ran out before the remote
// service produced a result. The remote job, if it ever finishes, is
// abandoned.
var ErrTimeout = errors.New("transcription not ready within wait budget")

// Runner executes one job end to end against the external capability:
// acquire a throwaway session, configure and upload, wait, poll, and always
// release the session.
type Runner struct {
	client       Client
	language     string
	settleDelay  time.Duration
	pollInterval time.Duration

	// sleep is injectable so tests can run the poll loop without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner builds a Runner. settleDelay is the pause after upload before
// polling starts; pollInterval is the spacing of completion checks.
func NewRunner(client Client, language string, settleDelay, pollInterval time.Duration) *Runner {
	return &Runner{
		client:       client,
		language:     language,
		settleDelay:  settleDelay,
		pollInterval: pollInterval,
		sleep:        sleepCtx,
	}
}

// NewRunnerForTests builds a Runner with an injectable sleep function.
func NewRunnerForTests(client Client, language string, settleDelay, pollInterval time.Duration, sleep func(ctx context.Context, d time.Duration) error) *Runner {
	r := NewRunner(client, language, settleDelay, pollInterval)
	r.sleep = sleep
	return r
}

// Run drives one transcription to a terminal state and returns the text.
// The job's cancel token is sampled at exactly two checkpoints: after the
// settle delay and before each poll. Elapsed time counts poll-interval
// sleeps only; the settle delay and listing latency are excluded, matching
// the budget the wait-time policy was sized for. The acquired session is
// released on every exit path. onStage, when non-nil, receives coarse
// progress labels for status edits.
func (r *Runner) Run(ctx context.Context, j *job.Job, onStage func(stage string)) (string, error) {
	creds := NewCredentials()
	sess, err := r.client.Register(ctx, creds)
	if err != nil {
		return "", fmt.Errorf("acquire session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("session close", "job_id", j.ID, "error", cerr)
		}
	}()

	opts := Options{Language: r.language, Diarize: true, Restore: j.Restore}
	if err := sess.Configure(ctx, opts); err != nil {
		return "", fmt.Errorf("configure job: %w", err)
	}
	if err := sess.Upload(ctx, j.TempPath); err != nil {
		return "", fmt.Errorf("submit audio: %w", err)
	}

	emitStage(onStage, "transcribing")

	// Settle delay lets the remote service register the upload, then first
	// cancellation checkpoint.
	if err := r.sleep(ctx, r.settleDelay); err != nil {
		return "", err
	}
	if j.Cancel != nil && j.Cancel.Cancelled() {
		return "", ErrCancelled
	}

	return r.poll(ctx, j, sess)
}

// poll waits for the remote listing to expose a non-empty result for the
// job's file, within the job's timeout budget.
func (r *Runner) poll(ctx context.Context, j *job.Job, sess Session) (string, error) {
	budget := time.Duration(j.TimeoutSeconds) * time.Second
	wanted := baseName(j.TempPath)

	var elapsed time.Duration
	for elapsed < budget {
		if err := r.sleep(ctx, r.pollInterval); err != nil {
			return "", err
		}
		elapsed += r.pollInterval

		if j.Cancel != nil && j.Cancel.Cancelled() {
			return "", ErrCancelled
		}

		entries, err := sess.ListEntries(ctx)
		if err != nil {
			// Transient listing failures burn budget but never fail the job.
			slog.Warn("poll listing", "job_id", j.ID, "elapsed", elapsed, "error", err)
			continue
		}

		for _, e := range entries {
			if !strings.Contains(e.Name, wanted) {
				continue
			}
			// First match wins; generated temp names are unique.
			if text := e.ResultText; strings.TrimSpace(text) != "" {
				return text, nil
			}
			break
		}
		slog.Info("transcription pending", "job_id", j.ID, "elapsed", elapsed, "budget", budget)
	}

	return "", ErrTimeout
}

// baseName strips directory and extension: the remote listing shows the
// uploaded file under its extension-less name.
func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

// sleepCtx waits for d or for ctx cancellation, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
