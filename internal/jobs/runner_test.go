package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"codescope/internal/logging"
)

func newTestRunner(t *testing.T, cfg RunnerConfig) *Runner {
	t.Helper()
	r := NewRunner(logging.Discard(), cfg)
	r.Start()
	t.Cleanup(func() { r.Stop(5 * time.Second) })
	return r
}

func awaitTerminal(t *testing.T, r *Runner, jobID string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := r.GetJob(jobID); ok && job.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

func TestRunnerExecutesJob(t *testing.T) {
	r := newTestRunner(t, DefaultRunnerConfig())
	r.RegisterHandler(JobTypeIndexRepository, func(_ context.Context, _ *Job, progress func(int)) error {
		progress(50)
		return nil
	})

	job := NewJob(JobTypeIndexRepository, "r:abc")
	if err := r.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := awaitTerminal(t, r, job.ID)
	if done.Status != JobCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if done.Progress != 100 {
		t.Errorf("progress = %d, want 100 on completion", done.Progress)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps not set on completion")
	}
}

func TestRunnerRecordsHandlerFailure(t *testing.T) {
	r := newTestRunner(t, DefaultRunnerConfig())
	r.RegisterHandler(JobTypeIndexRepository, func(context.Context, *Job, func(int)) error {
		return errors.New("disk on fire")
	})

	job := NewJob(JobTypeIndexRepository, "r:abc")
	if err := r.Submit(job); err != nil {
		t.Fatal(err)
	}
	done := awaitTerminal(t, r, job.ID)
	if done.Status != JobFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
	if done.Error != "disk on fire" {
		t.Errorf("error = %q", done.Error)
	}
}

func TestRunnerFailsJobWithoutHandler(t *testing.T) {
	r := newTestRunner(t, DefaultRunnerConfig())
	abandoned := make(chan *Job, 1)
	r.OnAbandoned(func(j *Job) { abandoned <- j })

	job := NewJob(JobTypeImportSCIP, "r:abc")
	if err := r.Submit(job); err != nil {
		t.Fatal(err)
	}
	done := awaitTerminal(t, r, job.ID)
	if done.Status != JobFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
	select {
	case j := <-abandoned:
		if j.ID != job.ID || j.Status != JobFailed {
			t.Fatalf("abandoned callback got %s/%s, want %s failed", j.ID, j.Status, job.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned callback never fired for handlerless job")
	}
}

func TestRunnerCancelRunningJob(t *testing.T) {
	r := newTestRunner(t, DefaultRunnerConfig())
	started := make(chan struct{})
	r.RegisterHandler(JobTypeIndexRepository, func(ctx context.Context, _ *Job, _ func(int)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	job := NewJob(JobTypeIndexRepository, "r:abc")
	if err := r.Submit(job); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := r.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	done := awaitTerminal(t, r, job.ID)
	if done.Status != JobCancelled {
		t.Fatalf("status = %s, want cancelled", done.Status)
	}
}

func TestRunnerCancelQueuedJob(t *testing.T) {
	// One worker held busy, so the second job stays queued.
	r := newTestRunner(t, RunnerConfig{QueueSize: 10, WorkerCount: 1})
	abandoned := make(chan *Job, 1)
	r.OnAbandoned(func(j *Job) { abandoned <- j })
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	r.RegisterHandler(JobTypeIndexRepository, func(ctx context.Context, _ *Job, _ func(int)) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	blocker := NewJob(JobTypeIndexRepository, "r:abc")
	if err := r.Submit(blocker); err != nil {
		t.Fatal(err)
	}
	<-started

	queued := NewJob(JobTypeIndexRepository, "r:abc")
	if err := r.Submit(queued); err != nil {
		t.Fatal(err)
	}
	if err := r.Cancel(queued.ID); err != nil {
		t.Fatalf("Cancel queued: %v", err)
	}
	close(release)

	done := awaitTerminal(t, r, queued.ID)
	if done.Status != JobCancelled {
		t.Fatalf("queued job status = %s, want cancelled", done.Status)
	}
	if done.StartedAt != nil {
		t.Error("cancelled queued job should never have started")
	}

	// No handler ran for the queued job, so the abandoned callback is the
	// only completion signal its owner gets.
	select {
	case j := <-abandoned:
		if j.ID != queued.ID || j.Status != JobCancelled {
			t.Fatalf("abandoned callback got %s/%s, want %s cancelled", j.ID, j.Status, queued.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned callback never fired for queued cancel")
	}
}

func TestRunnerCancelValidation(t *testing.T) {
	r := newTestRunner(t, DefaultRunnerConfig())
	r.RegisterHandler(JobTypeIndexRepository, func(context.Context, *Job, func(int)) error {
		return nil
	})

	if err := r.Cancel("no-such-job"); err == nil {
		t.Error("expected error cancelling unknown job")
	}

	job := NewJob(JobTypeIndexRepository, "r:abc")
	if err := r.Submit(job); err != nil {
		t.Fatal(err)
	}
	awaitTerminal(t, r, job.ID)
	if err := r.Cancel(job.ID); err == nil {
		t.Error("expected error cancelling a completed job")
	}
}

func TestRunnerQueueFull(t *testing.T) {
	r := NewRunner(logging.Discard(), RunnerConfig{QueueSize: 1, WorkerCount: 1})
	// Not started: nothing drains the queue.
	if err := r.Submit(NewJob(JobTypeIndexRepository, "r:abc")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	overflow := NewJob(JobTypeIndexRepository, "r:abc")
	if err := r.Submit(overflow); err == nil {
		t.Fatal("expected queue-full error")
	}
	if _, ok := r.GetJob(overflow.ID); ok {
		t.Error("rejected job should not be tracked")
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	r := NewRunner(logging.Discard(), DefaultRunnerConfig())
	older := NewJob(JobTypeIndexRepository, "r:abc")
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	newer := NewJob(JobTypeImportSCIP, "r:abc")
	if err := r.Submit(older); err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(newer); err != nil {
		t.Fatal(err)
	}

	list := r.ListJobs()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}
}

func TestGetJobReturnsCopy(t *testing.T) {
	r := NewRunner(logging.Discard(), DefaultRunnerConfig())
	job := NewJob(JobTypeIndexRepository, "r:abc")
	if err := r.Submit(job); err != nil {
		t.Fatal(err)
	}
	got, ok := r.GetJob(job.ID)
	if !ok {
		t.Fatal("job not found")
	}
	got.Status = JobFailed
	again, _ := r.GetJob(job.ID)
	if again.Status != JobQueued {
		t.Error("mutating a returned job leaked into the runner")
	}
}
