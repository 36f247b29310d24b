package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/k-code-yt/go-storefront/internal/jobs"
)

var ErrQueueDown = errors.New("queue unavailable")

// MemQueue dedups by job key the way the ledger does: a known key is a
// no-op whatever its state.
type MemQueue struct {
	mu   sync.Mutex
	jobs []*jobs.Job
	keys map[string]struct{}
	err  error
}

func NewMemQueue() *MemQueue {
	return &MemQueue{keys: map[string]struct{}{}}
}

// SetErr makes every Enqueue fail with err until it is reset with nil.
func (q *MemQueue) SetErr(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *MemQueue) Enqueue(ctx context.Context, job *jobs.Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return false, q.err
	}
	if _, ok := q.keys[job.DedupKey]; ok {
		return false, nil
	}
	q.keys[job.DedupKey] = struct{}{}
	q.jobs = append(q.jobs, job)
	return true, nil
}

func (q *MemQueue) Jobs() []*jobs.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.jobs)
}
