package engine

import "golang.org/x/sync/errgroup"

// workQueue runs deferred work in the background, one job at a time. Jobs
// enqueued while another one runs are dropped, the pending flag of the output
// keeps the work for a later job.
type workQueue struct {
	g errgroup.Group
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.g.SetLimit(1)
	return q
}

// Enqueue starts fn unless a job is already running. Reports whether fn was
// started.
func (q *workQueue) Enqueue(fn func()) bool {
	return q.g.TryGo(func() error {
		fn()
		return nil
	})
}

func (q *workQueue) Drain() { q.g.Wait() }
