package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gwlsn/tsshrink/internal/ffmpeg"
	"github.com/gwlsn/tsshrink/internal/logger"
)

// Recorder defines the persistence interface for run history.
// This interface is implemented by internal/store.SQLiteStore.
type Recorder interface {
	StartRun(run *Run) error
	RecordFile(runID string, job *Job) error
	FinishRun(run *Run) error
}

// Queue holds the jobs of one run in processing order
type Queue struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	order    []string // Job IDs in discovery order
	runID    string
	recorder Recorder // nil = in-memory only

	listenersMu sync.RWMutex
	listeners   []func(JobEvent)
}

// NewQueue creates an empty queue whose terminal job states are written
// to recorder under runID.
func NewQueue(runID string, recorder Recorder) *Queue {
	return &Queue{
		jobs:     make(map[string]*Job),
		order:    make([]string, 0),
		runID:    runID,
		recorder: recorder,
	}
}

// persist saves a job to the recorder (if configured).
// Called with lock held.
func (q *Queue) persist(job *Job) {
	if q.recorder == nil {
		return
	}
	if err := q.recorder.RecordFile(q.runID, job); err != nil {
		logger.Warn("Failed to record job", "job_id", job.ID, "error", err)
	}
}

// Add appends a discovered file
func (q *Queue) Add(inputPath, outputPath string, inputSize int64) *Job {
	job := &Job{
		ID:         uuid.NewString(),
		InputPath:  inputPath,
		OutputPath: outputPath,
		Status:     StatusDiscovered,
		InputSize:  inputSize,
		CreatedAt:  time.Now(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.mu.Unlock()

	return job
}

// Get returns a job by ID
func (q *Queue) Get(id string) *Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.jobs[id]
}

// GetAll returns all jobs in discovery order
func (q *Queue) GetAll() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Job, 0, len(q.order))
	for _, id := range q.order {
		if job, ok := q.jobs[id]; ok {
			result = append(result, job)
		}
	}
	return result
}

// Subscribe registers fn for every job event. fn runs on the goroutine
// that changed the job and must not block.
func (q *Queue) Subscribe(fn func(JobEvent)) {
	q.listenersMu.Lock()
	q.listeners = append(q.listeners, fn)
	q.listenersMu.Unlock()
}

func (q *Queue) broadcast(event JobEvent) {
	q.listenersMu.RLock()
	defer q.listenersMu.RUnlock()
	for _, fn := range q.listeners {
		fn(event)
	}
}

// update applies fn to a non-terminal job, persists terminal results and
// broadcasts a snapshot of the job.
func (q *Queue) update(id, eventType string, allowTerminal bool, fn func(job *Job)) error {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return jobNotFoundError(id)
	}
	if job.IsTerminal() && !allowTerminal {
		q.mu.Unlock()
		return jobTerminalError(id, job.Status)
	}

	fn(job)
	if job.IsTerminal() {
		q.persist(job)
	}
	snapshot := *job
	q.mu.Unlock()

	q.broadcast(JobEvent{Type: eventType, Job: &snapshot})
	return nil
}

// StartTranscode marks a job as transcoding
func (q *Queue) StartTranscode(id string) error {
	return q.update(id, EventStarted, false, func(job *Job) {
		job.Status = StatusTranscoding
		job.StartedAt = time.Now()
	})
}

// UpdateProgress records an encoder progress tick
func (q *Queue) UpdateProgress(id string, p ffmpeg.Progress) {
	_ = q.update(id, EventProgress, false, func(job *Job) {
		job.Progress = p.Percent
		job.Speed = p.Speed
	})
}

// StartVerify marks a job as verifying
func (q *Queue) StartVerify(id string, outputSize int64, transcodeTime time.Duration) error {
	return q.update(id, EventVerifying, false, func(job *Job) {
		job.Status = StatusVerifying
		job.Progress = 100
		job.OutputSize = outputSize
		job.SpaceSaved = job.InputSize - outputSize
		job.TranscodeTime = int64(transcodeTime.Seconds())
	})
}

// Skip marks a job as skipped with a reason
func (q *Queue) Skip(id, reason string) error {
	return q.update(id, EventSkipped, false, func(job *Job) {
		job.Status = StatusSkipped
		job.Error = reason
		job.CompletedAt = time.Now()
	})
}

// Complete marks a job as verified
func (q *Queue) Complete(id string, warnings []string) error {
	return q.update(id, EventSucceeded, false, func(job *Job) {
		job.Status = StatusSucceeded
		job.Warnings = warnings
		job.CompletedAt = time.Now()
	})
}

// Fail marks a job as failed with an error message
func (q *Queue) Fail(id, errMsg string) error {
	return q.update(id, EventFailed, false, func(job *Job) {
		job.Status = StatusFailed
		job.Error = errMsg
		job.CompletedAt = time.Now()
	})
}

// Cancel marks a job as cancelled
func (q *Queue) Cancel(id string) error {
	return q.update(id, EventCancelled, false, func(job *Job) {
		job.Status = StatusCancelled
		job.CompletedAt = time.Now()
	})
}

// MarkDeleted records that a succeeded job's source was removed
func (q *Queue) MarkDeleted(id string) error {
	return q.update(id, EventDeleted, true, func(job *Job) {
		job.Deleted = true
	})
}
