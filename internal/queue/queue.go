// Package queue runs request jobs on a bounded pool of workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"git.home.luguber.info/inful/texbot/internal/logfields"
	"git.home.luguber.info/inful/texbot/internal/metrics"
)

var (
	// ErrQueueFull is returned by Enqueue when every slot is taken.
	ErrQueueFull = errors.New("request queue is full")
	// ErrQueueStopped is returned by Enqueue after Stop.
	ErrQueueStopped = errors.New("request queue is stopped")
)

// Status represents the current status of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Job is one unit of work, normally one chat request.
type Job struct {
	ID          string        `json:"id"`
	ChatID      int64         `json:"chat_id,omitempty"`
	FileName    string        `json:"file_name,omitempty"`
	Status      Status        `json:"status"`
	Outcome     string        `json:"outcome,omitempty"`
	Worker      string        `json:"worker,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`

	// Run does the work and returns an outcome label. A non-nil error marks the job failed.
	Run func(ctx context.Context) (string, error) `json:"-"`
	// OnPanic, if set, is called after Run panicked, e.g. to apologize to the user.
	OnPanic func(ctx context.Context) `json:"-"`
	// OnDrop, if set, is called for jobs still queued when the queue stops.
	OnDrop func() `json:"-"`

	cancel context.CancelFunc
}

// Queue manages the queue of jobs.
type Queue struct {
	jobs        chan *Job
	workers     int
	maxSize     int
	mu          sync.RWMutex
	active      map[string]*Job
	history     []*Job
	historySize int
	stopChan    chan struct{}
	stopOnce    sync.Once
	stopped     bool
	wg          sync.WaitGroup
	recorder    metrics.Recorder
}

// New creates a queue holding at most maxSize waiting jobs, drained by workers goroutines.
func New(maxSize, workers int) *Queue {
	if maxSize <= 0 {
		maxSize = 32
	}
	if workers <= 0 {
		workers = 2
	}
	return &Queue{
		jobs:        make(chan *Job, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*Job),
		history:     make([]*Job, 0),
		historySize: 50,
		stopChan:    make(chan struct{}),
		recorder:    metrics.NoopRecorder{},
	}
}

// SetRecorder injects a metrics recorder (optional).
func (q *Queue) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	q.recorder = r
}

// Start begins processing jobs with the configured number of workers.
func (q *Queue) Start(ctx context.Context) {
	slog.Info("Starting request queue", "workers", q.workers, "max_size", q.maxSize)
	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop cancels active jobs, waits for workers (bounded by ctx), then drops
// whatever is still queued, calling each job's OnDrop.
func (q *Queue) Stop(ctx context.Context) {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.stopChan)
		for _, job := range q.active {
			if job.cancel != nil {
				job.cancel()
			}
		}
		q.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Request queue stop timed out; workers still running")
	}

	for {
		select {
		case job := <-q.jobs:
			drop(job)
		default:
			q.recorder.SetQueueDepth(0)
			return
		}
	}
}

// Length returns the current queue length.
func (q *Queue) Length() int {
	return len(q.jobs)
}

// ActiveCount returns how many jobs are running.
func (q *Queue) ActiveCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.active)
}

// GetActiveJobs returns copies of the currently active jobs.
func (q *Queue) GetActiveJobs() []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	active := make([]Job, 0, len(q.active))
	for _, job := range q.active {
		active = append(active, snapshot(job))
	}
	return active
}

// History returns copies of recently finished jobs, oldest first.
func (q *Queue) History() []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Job, 0, len(q.history))
	for _, job := range q.history {
		out = append(out, snapshot(job))
	}
	return out
}

// Enqueue adds a job without blocking.
func (q *Queue) Enqueue(job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	if job.ID == "" {
		return errors.New("job ID is required")
	}
	if job.Run == nil {
		return errors.New("job has nothing to run")
	}

	// Holding the read lock across the send keeps Stop from draining in between.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}

	job.Status = StatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	select {
	case q.jobs <- job:
		q.recorder.SetQueueDepth(len(q.jobs))
		return nil
	default:
		q.recorder.IncQueueRejected()
		return ErrQueueFull
	}
}

// JobSnapshot returns a copy of a job (active first, then history).
func (q *Queue) JobSnapshot(id string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if j, ok := q.active[id]; ok {
		return snapshot(j), true
	}
	for _, j := range q.history {
		if j.ID == id {
			return snapshot(j), true
		}
	}
	return Job{}, false
}

func drop(job *Job) {
	if job != nil && job.OnDrop != nil {
		job.OnDrop()
	}
}

func snapshot(j *Job) Job {
	cp := *j
	cp.Run, cp.OnPanic, cp.OnDrop, cp.cancel = nil, nil, nil, nil
	return cp
}

func (q *Queue) worker(ctx context.Context, workerID string) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case job := <-q.jobs:
			if job == nil {
				continue
			}
			q.recorder.SetQueueDepth(len(q.jobs))
			select {
			case <-q.stopChan:
				drop(job)
				return
			default:
			}
			q.processJob(ctx, job, workerID)
		}
	}
}

func (q *Queue) processJob(ctx context.Context, job *Job, workerID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	startTime := time.Now()
	q.mu.Lock()
	job.cancel = cancel
	job.StartedAt = &startTime
	job.Status = StatusRunning
	job.Worker = workerID
	q.active[job.ID] = job
	q.recorder.SetActiveWorkers(len(q.active))
	q.mu.Unlock()

	outcome, err := q.run(jobCtx, job, workerID)
	q.markJobCompleted(job, outcome, err, jobCtx.Err() != nil)
}

// run calls job.Run and turns a panic into an error.
func (q *Queue) run(ctx context.Context, job *Job, workerID string) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Request job panicked",
				logfields.RequestID(job.ID),
				logfields.Worker(workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			outcome, err = "internal_error", fmt.Errorf("panic: %v", r)
			if job.OnPanic != nil {
				job.OnPanic(context.WithoutCancel(ctx))
			}
		}
	}()
	return job.Run(ctx)
}

func (q *Queue) markJobCompleted(job *Job, outcome string, err error, canceled bool) {
	endTime := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	job.CompletedAt = &endTime
	if job.StartedAt != nil {
		job.Duration = endTime.Sub(*job.StartedAt)
	}
	job.Outcome = outcome
	switch {
	case err != nil && canceled:
		job.Status = StatusCanceled
		job.Error = err.Error()
	case err != nil:
		job.Status = StatusFailed
		job.Error = err.Error()
	default:
		job.Status = StatusCompleted
	}
	delete(q.active, job.ID)
	q.addToHistory(job)
	q.recorder.SetActiveWorkers(len(q.active))
}

func (q *Queue) addToHistory(job *Job) {
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		copy(q.history, q.history[len(q.history)-q.historySize:])
		q.history = q.history[:q.historySize]
	}
}
