package job

import "time"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimedOut   Status = "timed_out"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is one admitted audio transcription request. It is owned by the queue
// until popped, then exclusively by the worker loop until it terminates.
type Job struct {
	ID              string     `json:"job_id"`
	SubmitterID     string     `json:"submitter_id"`
	DisplayName     string     `json:"display_name"`
	TempPath        string     `json:"-"`
	DurationSeconds float64    `json:"duration_seconds"`
	TimeoutSeconds  int        `json:"timeout_seconds"`
	Restore         bool       `json:"restore"`
	CallbackURL     string     `json:"callback_url,omitempty"`
	Status          Status     `json:"status"`
	Result          string     `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	// Cancel is settable only through the cancel endpoint for this job's ID
	// and is sampled by the transcription session at its checkpoints.
	Cancel *CancelToken `json:"-"`
}
