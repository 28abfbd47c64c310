// Package queue holds the FIFO job queue and the single worker loop that
// drains it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/scribeq/scribeq/internal/config"
	"github.com/scribeq/scribeq/internal/fragment"
	"github.com/scribeq/scribeq/internal/job"
	"github.com/scribeq/scribeq/internal/transcribe"
	"github.com/scribeq/scribeq/internal/webhook"
)

// User-facing notices. Progress edits are separate from the single outcome
// notice each job produces.
const (
	noticeUploading   = "Uploading and configuring your file."
	noticeInProgress  = "Transcription in progress."
	noticeCancelled   = "The current task was cancelled."
	noticeNotObtained = "Could not obtain the transcription text."
	noticeFailed      = "Error while transcribing: "
	noticeEmpty       = "The transcription text is empty."
	noticeDone        = "File processed. You may send more audio."
)

// SSEEvent represents a Server-Sent Events event.
type SSEEvent struct {
	Event string // "status", "chunk", "result"
	Data  string // JSON string
}

// SessionRunner executes one job against the external capability.
type SessionRunner interface {
	Run(ctx context.Context, j *job.Job, onStage func(stage string)) (string, error)
}

// TempRemover deletes a job's temporary audio file. Idempotent.
type TempRemover interface {
	Remove(path string) error
}

// Queue is the in-memory FIFO of admitted jobs plus the worker loop that
// services them one at a time.
type Queue struct {
	cfg    *config.Config
	store  job.Store
	runner SessionRunner
	temp   TempRemover

	mu      sync.Mutex
	pending []*job.Job

	// draining guarantees at most one drain loop per process. Submit starts
	// the loop only on a successful false-to-true swap.
	draining atomic.Bool

	tokmu  sync.Mutex
	tokens map[string]*job.CancelToken

	submu sync.RWMutex
	subs  map[string][]*subscriber
	byOut map[chan SSEEvent]*subscriber

	// baseCtx is guarded by mu: Start may race a Submit-spawned drain.
	baseCtx context.Context
}

// New creates an empty queue.
func New(cfg *config.Config, store job.Store, runner SessionRunner, temp TempRemover) *Queue {
	return &Queue{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		temp:    temp,
		tokens:  make(map[string]*job.CancelToken),
		subs:    make(map[string][]*subscriber),
		byOut:   make(map[chan SSEEvent]*subscriber),
		baseCtx: context.Background(),
	}
}

// Start binds the queue to the process lifetime context. Jobs in flight
// observe its cancellation at their suspension points during shutdown.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.baseCtx = ctx
	q.mu.Unlock()
}

func (q *Queue) ctx() context.Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.baseCtx
}

// Submit appends the job to the tail and starts the drain loop if it is not
// already running. Never blocks the caller on in-progress work.
func (q *Queue) Submit(j *job.Job) {
	if j.Cancel == nil {
		j.Cancel = job.NewCancelToken()
	}

	q.tokmu.Lock()
	q.tokens[j.ID] = j.Cancel
	q.tokmu.Unlock()

	q.mu.Lock()
	q.pending = append(q.pending, j)
	depth := len(q.pending)
	q.mu.Unlock()

	slog.Info("job admitted", "job_id", j.ID, "submitter", j.SubmitterID, "queue_depth", depth)

	if q.draining.CompareAndSwap(false, true) {
		go q.drain()
	}
}

// Cancel sets the cancel token of a queued or in-flight job. Returns false
// when the job is unknown or already terminal.
func (q *Queue) Cancel(jobID string) bool {
	q.tokmu.Lock()
	tok, ok := q.tokens[jobID]
	q.tokmu.Unlock()
	if ok {
		tok.Cancel()
	}
	return ok
}

// Depth reports the number of jobs waiting in the queue.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// drain pops and fully processes jobs in FIFO order until the queue is
// empty. Exactly one drain runs at a time; after clearing the sentinel it
// re-checks for submissions that raced the exit.
func (q *Queue) drain() {
	for {
		j := q.pop()
		if j == nil {
			q.draining.Store(false)
			// A Submit may have appended after the empty pop but before the
			// sentinel cleared; reclaim the loop if so.
			if q.Depth() > 0 && q.draining.CompareAndSwap(false, true) {
				continue
			}
			return
		}
		q.process(q.ctx(), j)
	}
}

func (q *Queue) pop() *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	j := q.pending[0]
	q.pending = q.pending[1:]
	return j
}

// process drives one job to a terminal state. Errors are contained here:
// whatever happens, the temp file is removed, the token is retired, exactly
// one outcome notice goes out, and the loop moves on.
func (q *Queue) process(ctx context.Context, j *job.Job) {
	defer func() {
		if err := q.temp.Remove(j.TempPath); err != nil {
			slog.Error("temp cleanup", "job_id", j.ID, "error", err)
		}
		q.tokmu.Lock()
		delete(q.tokens, j.ID)
		q.tokmu.Unlock()
	}()

	if err := q.store.MarkProcessing(ctx, j.ID); err != nil {
		slog.Error("mark processing", "job_id", j.ID, "error", err)
	}

	// Status edits: skipped when the text did not change.
	lastStatus := ""
	edit := func(text string) {
		if text == lastStatus {
			return
		}
		lastStatus = text
		data, _ := json.Marshal(map[string]string{"status": string(job.StatusProcessing), "message": text})
		q.notify(j.ID, SSEEvent{Event: "status", Data: string(data)})
	}
	edit(noticeUploading)

	text, runErr := q.runner.Run(ctx, j, func(stage string) {
		if stage == "transcribing" {
			edit(noticeInProgress)
		}
	})

	switch {
	case errors.Is(runErr, transcribe.ErrCancelled):
		slog.Info("job cancelled", "job_id", j.ID)
		q.finalize(ctx, j, job.StatusCancelled, "", noticeCancelled, "cancelled by user")

	case errors.Is(runErr, transcribe.ErrTimeout):
		slog.Info("job timed out", "job_id", j.ID, "timeout_seconds", j.TimeoutSeconds)
		q.finalize(ctx, j, job.StatusTimedOut, "", noticeNotObtained, "polling budget exhausted")

	case runErr != nil:
		slog.Error("job failed", "job_id", j.ID, "error", runErr)
		q.finalize(ctx, j, job.StatusFailed, "", noticeFailed+runErr.Error(), runErr.Error())

	default:
		q.deliver(ctx, j, text)
	}
}

// deliver emits the transcription to the job's origin: ordered chunks under
// the message length cap, or the empty notice, then the success outcome.
func (q *Queue) deliver(ctx context.Context, j *job.Job, text string) {
	chunks := fragment.Split(text, q.cfg.MaxMessageLen)
	if len(chunks) == 0 {
		slog.Info("job completed with empty transcript", "job_id", j.ID)
		q.finalize(ctx, j, job.StatusCompleted, "", noticeEmpty, "")
		return
	}

	for i, c := range chunks {
		data, _ := json.Marshal(map[string]any{"seq": i, "text": c})
		q.notify(j.ID, SSEEvent{Event: "chunk", Data: string(data)})
	}
	slog.Info("job completed", "job_id", j.ID, "chunks", len(chunks), "bytes", len(text))
	q.finalize(ctx, j, job.StatusCompleted, text, noticeDone, "")
}

// finalize records the terminal state, emits the single outcome notice, and
// fires the optional webhook.
func (q *Queue) finalize(ctx context.Context, j *job.Job, status job.Status, result, notice, errMsg string) {
	if err := q.store.UpdateStatus(ctx, j.ID, status, result, errMsg); err != nil {
		slog.Error("update status", "job_id", j.ID, "error", err)
	}

	data, _ := json.Marshal(map[string]string{
		"status":  string(status),
		"message": notice,
		"error":   errMsg,
	})
	q.notifyAndClose(j.ID, SSEEvent{Event: "result", Data: string(data)})

	if j.CallbackURL != "" {
		payload, _ := json.Marshal(map[string]string{
			"job_id": j.ID,
			"status": string(status),
			"text":   strings.TrimSpace(result),
			"error":  errMsg,
		})
		webhook.Send(context.WithoutCancel(ctx), j.CallbackURL, payload)
	}
}

// subscriber decouples the worker from one SSE consumer. The pump goroutine
// buffers events without bound between in and out, so a consumer slower than
// the worker's chunk loop never loses result chunks; the worker's sends to
// in are received promptly and never block it on the network.
type subscriber struct {
	in   chan SSEEvent
	out  chan SSEEvent
	done chan struct{} // closed by Unsubscribe when the consumer leaves
}

func (s *subscriber) pump() {
	var buf []SSEEvent
	for {
		var sendCh chan SSEEvent
		var next SSEEvent
		if len(buf) > 0 {
			sendCh = s.out
			next = buf[0]
		}

		select {
		case ev, open := <-s.in:
			if !open {
				// Terminal event received; flush what the consumer has not
				// read yet, then signal completion.
				for _, e := range buf {
					select {
					case s.out <- e:
					case <-s.done:
						close(s.out)
						return
					}
				}
				close(s.out)
				return
			}
			buf = append(buf, ev)
		case sendCh <- next:
			buf = buf[1:]
		case <-s.done:
			close(s.out)
			return
		}
	}
}

// Subscribe creates an SSE channel for a job and returns it. The channel is
// closed after the job's result event (or on Unsubscribe).
func (q *Queue) Subscribe(jobID string) chan SSEEvent {
	s := &subscriber{
		in:   make(chan SSEEvent),
		out:  make(chan SSEEvent),
		done: make(chan struct{}),
	}
	go s.pump()

	q.submu.Lock()
	q.subs[jobID] = append(q.subs[jobID], s)
	q.byOut[s.out] = s
	q.submu.Unlock()
	return s.out
}

// Unsubscribe detaches an SSE channel and stops its pump. The byOut index
// lets a departing consumer stop its pump even after notifyAndClose has
// already taken the job's subscriber list.
func (q *Queue) Unsubscribe(jobID string, ch chan SSEEvent) {
	q.submu.Lock()
	defer q.submu.Unlock()

	s, ok := q.byOut[ch]
	if !ok {
		return
	}
	delete(q.byOut, ch)
	close(s.done)

	subs := q.subs[jobID]
	for i, c := range subs {
		if c == s {
			q.subs[jobID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(q.subs[jobID]) == 0 {
		delete(q.subs, jobID)
	}
}

// notify sends an event to all subscribers of a job. Each subscriber's pump
// is always ready to receive, so the worker is never stalled by a slow
// consumer and no event is dropped.
func (q *Queue) notify(jobID string, event SSEEvent) {
	q.submu.RLock()
	subs := q.subs[jobID]
	q.submu.RUnlock()

	for _, s := range subs {
		select {
		case s.in <- event:
		case <-s.done:
		}
	}
}

// notifyAndClose sends the final event and retires all subscribers of the job.
func (q *Queue) notifyAndClose(jobID string, event SSEEvent) {
	q.submu.Lock()
	subs := q.subs[jobID]
	delete(q.subs, jobID)
	q.submu.Unlock()

	for _, s := range subs {
		select {
		case s.in <- event:
		case <-s.done:
		}
		close(s.in)
	}
}
