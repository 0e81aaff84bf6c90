package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"codescope/internal/logging"
)

// JobHandler executes a specific type of job. The progress callback takes a
// percentage in [0, 100].
type JobHandler func(ctx context.Context, job *Job, progress func(int)) error

// Runner manages background job execution over a worker pool.
type Runner struct {
	logger   *logging.Logger
	handlers map[JobType]JobHandler

	queue       chan *Job
	queueSize   int
	workerCount int

	done      chan struct{}
	cancel    map[string]context.CancelFunc
	jobs      map[string]*Job
	abandoned func(*Job)

	mu sync.RWMutex
	wg sync.WaitGroup

	processedCount int64
	failedCount    int64
}

// RunnerConfig contains configuration for the job runner.
type RunnerConfig struct {
	QueueSize   int
	WorkerCount int
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		QueueSize:   100,
		WorkerCount: 2,
	}
}

// NewRunner creates a new job runner.
func NewRunner(logger *logging.Logger, config RunnerConfig) *Runner {
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	return &Runner{
		logger:      logger,
		handlers:    make(map[JobType]JobHandler),
		queue:       make(chan *Job, config.QueueSize),
		queueSize:   config.QueueSize,
		workerCount: config.WorkerCount,
		done:        make(chan struct{}),
		cancel:      make(map[string]context.CancelFunc),
		jobs:        make(map[string]*Job),
	}
}

// RegisterHandler registers a handler for a job type.
func (r *Runner) RegisterHandler(jobType JobType, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
	r.logger.Debug("Registered job handler", map[string]interface{}{
		"type": jobType,
	})
}

// Start begins processing jobs.
func (r *Runner) Start() {
	r.logger.Info("Starting job runner", map[string]interface{}{
		"workers":   r.workerCount,
		"queueSize": r.queueSize,
	})
	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop gracefully shuts down the runner, cancelling running jobs.
func (r *Runner) Stop(timeout time.Duration) error {
	r.logger.Info("Stopping job runner", nil)
	close(r.done)

	r.mu.Lock()
	for id, cancel := range r.cancel {
		r.logger.Debug("Cancelling running job", map[string]interface{}{
			"jobId": id,
		})
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Job runner stopped cleanly", nil)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("job runner shutdown timed out after %v", timeout)
	}
}

// Submit adds a job to the queue.
func (r *Runner) Submit(job *Job) error {
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	select {
	case r.queue <- job:
		r.logger.Debug("Job queued", map[string]interface{}{
			"jobId": job.ID,
			"type":  job.Type,
		})
		return nil
	case <-r.done:
		return fmt.Errorf("runner is shutting down")
	default:
		r.mu.Lock()
		delete(r.jobs, job.ID)
		r.mu.Unlock()
		return fmt.Errorf("job queue full")
	}
}

// OnAbandoned registers a callback invoked whenever a job reaches a
// terminal state without its handler ever running: cancelled while still
// queued, or failed because no handler was registered. Handlers observe
// their own completion; this is the only signal for jobs that never got
// one. The callback receives a copy.
func (r *Runner) OnAbandoned(fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned = fn
}

// Cancel attempts to cancel a job.
func (r *Runner) Cancel(jobID string) error {
	r.mu.Lock()

	job, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("job not found: %s", jobID)
	}
	if !job.CanCancel() {
		r.mu.Unlock()
		return fmt.Errorf("job cannot be cancelled in state: %s", job.Status)
	}
	if cancel, ok := r.cancel[jobID]; ok {
		r.mu.Unlock()
		cancel()
		return nil
	}
	// Still queued: mark cancelled so the worker skips it. No handler will
	// run for this job, so notify the abandoned callback.
	job.MarkCancelled()
	fn := r.abandoned
	clone := job.Clone()
	r.mu.Unlock()
	if fn != nil {
		fn(clone)
	}
	return nil
}

// UpdateJob applies fn to a job under the runner's lock. Handlers use
// this for mid-flight stats updates so concurrent readers never observe
// a partial write.
func (r *Runner) UpdateJob(jobID string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[jobID]; ok {
		fn(job)
	}
}

// GetJob retrieves a copy of a job by ID.
func (r *Runner) GetJob(jobID string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// ListJobs returns copies of all known jobs, newest first.
func (r *Runner) ListJobs() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// worker processes jobs from the queue.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("Job worker started", map[string]interface{}{
		"workerId": id,
	})

	for {
		select {
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.processJob(job)
		case <-r.done:
			r.logger.Debug("Job worker stopping", map[string]interface{}{
				"workerId": id,
			})
			return
		}
	}
}

// processJob executes a single job.
func (r *Runner) processJob(job *Job) {
	r.mu.RLock()
	handler, ok := r.handlers[job.Type]
	cancelled := job.Status == JobCancelled
	r.mu.RUnlock()

	if cancelled {
		return
	}
	if !ok {
		r.logger.Error("No handler for job type", map[string]interface{}{
			"jobId": job.ID,
			"type":  job.Type,
		})
		r.mu.Lock()
		job.MarkFailed(fmt.Errorf("no handler for job type: %s", job.Type))
		fn := r.abandoned
		clone := job.Clone()
		r.mu.Unlock()
		if fn != nil {
			fn(clone)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	// Re-check under the lock: a Cancel racing the dequeue must either be
	// seen here or find the registered cancel func, never neither.
	if job.Status == JobCancelled {
		r.mu.Unlock()
		cancel()
		return
	}
	r.cancel[job.ID] = cancel
	job.MarkStarted()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancel, job.ID)
		r.mu.Unlock()
		cancel()
	}()

	r.logger.Info("Processing job", map[string]interface{}{
		"jobId":      job.ID,
		"type":       job.Type,
		"repository": job.RepositoryID,
	})

	progress := func(pct int) {
		r.mu.Lock()
		job.SetProgress(pct)
		r.mu.Unlock()
	}

	startTime := time.Now()
	err := handler(ctx, job, progress)
	duration := time.Since(startTime)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if ctx.Err() == context.Canceled {
			job.MarkCancelled()
			r.logger.Info("Job cancelled", map[string]interface{}{
				"jobId":    job.ID,
				"duration": duration.String(),
			})
		} else {
			job.MarkFailed(err)
			r.failedCount++
			r.logger.Error("Job failed", map[string]interface{}{
				"jobId":    job.ID,
				"error":    err.Error(),
				"duration": duration.String(),
			})
		}
		return
	}

	job.MarkCompleted()
	r.processedCount++
	r.logger.Info("Job completed", map[string]interface{}{
		"jobId":    job.ID,
		"duration": duration.String(),
	})
}

// Stats returns runner statistics.
func (r *Runner) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]interface{}{
		"queueLength":    len(r.queue),
		"queueCapacity":  r.queueSize,
		"runningJobs":    len(r.cancel),
		"processedTotal": r.processedCount,
		"failedTotal":    r.failedCount,
		"workerCount":    r.workerCount,
	}
}
