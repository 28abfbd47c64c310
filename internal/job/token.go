package job

import "sync/atomic"

// CancelToken is a per-job cancellation flag. It is sampled at defined
// checkpoints only, never mid-call, so cancellation costs at most one
// polling interval before it is honoured.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the token. Setting an already-set token is a no-op.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether the token has been set.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}
