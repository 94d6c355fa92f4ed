package queue

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/yusufkaraaslan/lazy-bird/internal/models"
)

// ErrQueueFull is returned by Submit when the registry is at capacity.
var ErrQueueFull = errors.New("queue is full")

type entry struct {
	job *models.Job
	seq uint64
}

// JobQueue is an in-process FIFO of test jobs. The registry keeps every
// tracked job, waiting or finished, so capacity bounds the total number of
// jobs held until Sweep removes old ones. At most one job is active at a
// time.
type JobQueue struct {
	mu       sync.Mutex
	jobs     map[string]*entry
	nextSeq  uint64
	wake     chan struct{}
	capacity int
	activeID string
}

// New creates a queue holding at most capacity jobs.
func New(capacity int) *JobQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &JobQueue{
		jobs:     make(map[string]*entry),
		wake:     make(chan struct{}, 1),
		capacity: capacity,
	}
}

// Submit admits a job, stamping it queued. The returned copy carries the
// submission time. ErrQueueFull when the registry is at capacity; a
// rejected submission leaves no trace.
func (q *JobQueue) Submit(job models.Job) (models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) >= q.capacity {
		return models.Job{}, ErrQueueFull
	}

	job.Status = models.StatusQueued
	job.SubmittedAt = time.Now().UTC()

	q.nextSeq++
	stored := job
	q.jobs[job.ID] = &entry{job: &stored, seq: q.nextSeq}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return job, nil
}

// Dequeue blocks up to wait for the next runnable job. Jobs cancelled
// while waiting are never handed out. On success the job is recorded as
// active and a copy returned; the transition to running belongs to the
// executor.
func (q *JobQueue) Dequeue(wait time.Duration) (models.Job, bool) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if e, ok := q.nextWaitingLocked(); ok {
			q.activeID = e.job.ID
			job := *e.job
			q.mu.Unlock()
			return job, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-deadline.C:
			return models.Job{}, false
		}
	}
}

// nextWaitingLocked finds the oldest waiting job. Callers hold q.mu.
func (q *JobQueue) nextWaitingLocked() (*entry, bool) {
	var oldest *entry
	for id, e := range q.jobs {
		if id == q.activeID || e.job.Status != models.StatusQueued {
			continue
		}
		if oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	return oldest, oldest != nil
}

// Get returns a copy of the job.
func (q *JobQueue) Get(id string) (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *e.job, true
}

// Update replaces the stored job wholesale. A terminal update for the
// active job releases the active marker.
func (q *JobQueue) Update(job models.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[job.ID]
	if !ok {
		return
	}
	stored := job
	e.job = &stored
	if q.activeID == job.ID && stored.Terminal() {
		q.activeID = ""
	}
}

// Cancel marks a waiting job cancelled and stamps its completion time.
// Jobs already picked up, finished, or unknown are not cancellable.
func (q *JobQueue) Cancel(id string) (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[id]
	if !ok || e.job.Status != models.StatusQueued || id == q.activeID {
		return models.Job{}, false
	}
	now := time.Now().UTC()
	e.job.Status = models.StatusCancelled
	e.job.CompletedAt = &now
	return *e.job, true
}

// Position is the 1-based place among waiting jobs, 0 when not waiting.
func (q *JobQueue) Position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	target, ok := q.jobs[id]
	if !ok || target.job.Status != models.StatusQueued || id == q.activeID {
		return 0
	}
	pos := 1
	for jid, e := range q.jobs {
		if jid == id || jid == q.activeID || e.job.Status != models.StatusQueued {
			continue
		}
		if e.seq < target.seq {
			pos++
		}
	}
	return pos
}

// Snapshot returns copies of the waiting jobs in submission order.
func (q *JobQueue) Snapshot() []models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	waiting := make([]*entry, 0, len(q.jobs))
	for id, e := range q.jobs {
		if id == q.activeID || e.job.Status != models.StatusQueued {
			continue
		}
		waiting = append(waiting, e)
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].seq < waiting[j].seq })

	out := make([]models.Job, len(waiting))
	for i, e := range waiting {
		out[i] = *e.job
	}
	return out
}

// ActiveJob returns the job currently being executed, if any.
func (q *JobQueue) ActiveJob() (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.activeID == "" {
		return models.Job{}, false
	}
	e, ok := q.jobs[q.activeID]
	if !ok {
		return models.Job{}, false
	}
	return *e.job, true
}

// Depth is the number of jobs waiting to run.
func (q *JobQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for id, e := range q.jobs {
		if id != q.activeID && e.job.Status == models.StatusQueued {
			n++
		}
	}
	return n
}

// Len is the number of tracked jobs, waiting or not.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Sweep drops terminal jobs whose completion is older than maxAge and
// returns their ids so callers can prune artifacts. Waiting and running
// jobs are never touched.
func (q *JobQueue) Sweep(maxAge time.Duration) []string {
	cutoff := time.Now().UTC().Add(-maxAge)

	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []string
	for id, e := range q.jobs {
		if !e.job.Terminal() || e.job.CompletedAt == nil {
			continue
		}
		if e.job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed = append(removed, id)
		}
	}
	return removed
}
