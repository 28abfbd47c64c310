package job

import "context"

// Store records admitted jobs and their outcomes. The in-memory queue stays
// authoritative for processing order; the store serves the read API and
// keeps history for the cleanup loop.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	UpdateStatus(ctx context.Context, id string, status Status, result, errMsg string) error
	MarkProcessing(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// FailStale marks all non-terminal jobs as failed and returns their IDs.
	// Called at startup: the queue is not persisted, so jobs interrupted by a
	// restart can never run again.
	FailStale(ctx context.Context, reason string) ([]string, error)
	// List returns a page of jobs ordered by created_at DESC, plus the total count.
	List(ctx context.Context, limit, offset int) ([]*Job, int, error)
}
