package job

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.db.Close() })
	return store
}

func makeJob(id, submitter, name string) *Job {
	return &Job{
		ID:              id,
		SubmitterID:     submitter,
		DisplayName:     name,
		DurationSeconds: 240,
		TimeoutSeconds:  90,
		Restore:         true,
		Status:          StatusQueued,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	j := makeJob("job-1", "alice", "voice-note.ogg")
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil, want job")
	}
	if got.ID != j.ID {
		t.Errorf("ID = %q, want %q", got.ID, j.ID)
	}
	if got.SubmitterID != "alice" {
		t.Errorf("SubmitterID = %q, want %q", got.SubmitterID, "alice")
	}
	if got.DisplayName != "voice-note.ogg" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "voice-note.ogg")
	}
	if got.TimeoutSeconds != 90 {
		t.Errorf("TimeoutSeconds = %d, want 90", got.TimeoutSeconds)
	}
	if !got.Restore {
		t.Error("Restore = false, want true")
	}
	if got.Status != StatusQueued {
		t.Errorf("Status = %q, want %q", got.Status, StatusQueued)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	got, err := store.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Get returned %+v, want nil", got)
	}
}

func TestUpdateStatus_Completed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	j := makeJob("job-2", "alice", "a.mp3")
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.UpdateStatus(ctx, "job-2", StatusCompleted, "the transcript", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := store.Get(ctx, "job-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.Result != "the transcript" {
		t.Errorf("Result = %q, want %q", got.Result, "the transcript")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt is nil, want non-nil")
	}
}

func TestUpdateStatus_TimedOut(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	j := makeJob("job-3", "bob", "long.wav")
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.UpdateStatus(ctx, "job-3", StatusTimedOut, "", "polling budget exhausted"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := store.Get(ctx, "job-3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusTimedOut {
		t.Errorf("Status = %q, want %q", got.Status, StatusTimedOut)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt is nil, want non-nil")
	}
}

func TestMarkProcessing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	j := makeJob("job-4", "alice", "b.ogg")
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.MarkProcessing(ctx, "job-4"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	got, err := store.Get(ctx, "job-4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusProcessing {
		t.Errorf("Status = %q, want %q", got.Status, StatusProcessing)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt is nil, want non-nil")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	j := makeJob("job-5", "alice", "c.wma")
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(ctx, "job-5"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := store.Get(ctx, "job-5")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if got != nil {
		t.Errorf("Get after delete returned %+v, want nil", got)
	}
}

func TestFailStale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	j1 := makeJob("job-a", "alice", "a.ogg")
	j2 := makeJob("job-b", "bob", "b.ogg")
	j3 := makeJob("job-c", "carol", "c.ogg")

	for _, j := range []*Job{j1, j2, j3} {
		if err := store.Create(ctx, j); err != nil {
			t.Fatalf("Create %s: %v", j.ID, err)
		}
	}
	if err := store.MarkProcessing(ctx, "job-b"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.UpdateStatus(ctx, "job-c", StatusCompleted, "done", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	ids, err := store.FailStale(ctx, "interrupted by restart")
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("FailStale returned %v, want two ids", ids)
	}

	for _, id := range []string{"job-a", "job-b"} {
		got, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if got.Status != StatusFailed {
			t.Errorf("%s Status = %q, want %q", id, got.Status, StatusFailed)
		}
		if got.Error != "interrupted by restart" {
			t.Errorf("%s Error = %q, want restart reason", id, got.Error)
		}
	}

	// The completed job is untouched.
	got, err := store.Get(ctx, "job-c")
	if err != nil {
		t.Fatalf("Get job-c: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("job-c Status = %q, want %q", got.Status, StatusCompleted)
	}
}

func TestDeleteTerminalBefore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	j := makeJob("job-old", "alice", "old.mp3")
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.UpdateStatus(ctx, "job-old", StatusCancelled, "", "cancelled by user"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	n, err := store.DeleteTerminalBefore(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d rows, want 1", n)
	}

	got, err := store.Get(ctx, "job-old")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("job still present after cleanup: %+v", got)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Now().UTC()
	for i, id := range []string{"job-1", "job-2", "job-3"} {
		j := makeJob(id, "alice", id+".ogg")
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.Create(ctx, j); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	jobs, total, err := store.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	// Newest first.
	if jobs[0].ID != "job-3" || jobs[1].ID != "job-2" {
		t.Errorf("order = [%s %s], want [job-3 job-2]", jobs[0].ID, jobs[1].ID)
	}
}
