// Package scheduler implements a bounded-concurrency task queue: a fixed
// worker pool drains a buffered queue that refuses new work once full, and
// any task enqueued can also be "stolen" and run inline by a waiter before a
// worker reaches it (see internal/executor).
package scheduler

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/alibaba/proxima-sub000/internal/errcode"
)

// defaultQueueDepth bounds how many tasks may sit in the queue awaiting a
// free worker before Schedule starts refusing new work.
const defaultQueueDepth = 4096

// Scheduler is a bounded-concurrency work queue. Admission into the worker
// set is governed by a semaphore.Weighted sized to the configured
// concurrency; the queue itself is a buffered channel so a full queue
// refuses new work rather than blocking the caller.
type Scheduler struct {
	mu          sync.RWMutex
	concurrency int64
	sem         *semaphore.Weighted

	queue chan *Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// New builds a Scheduler. concurrency <= 0 defaults to runtime.NumCPU().
func New(concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		concurrency: int64(concurrency),
		sem:         semaphore.NewWeighted(int64(concurrency)),
		queue:       make(chan *Task, defaultQueueDepth),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Concurrency returns the configured worker count.
func (s *Scheduler) Concurrency() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.concurrency)
}

// SetConcurrency reconfigures the worker count for tasks scheduled from this
// point forward. Tasks already admitted under the previous limit are
// unaffected.
func (s *Scheduler) SetConcurrency(n int) {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.concurrency = int64(n)
	s.sem = semaphore.NewWeighted(int64(n))
}

// Schedule enqueues task for execution. It returns a ScheduleError when the
// queue is full or the scheduler has been stopped.
func (s *Scheduler) Schedule(task *Task) error {
	select {
	case <-s.ctx.Done():
		return errcode.New(errcode.StoppedService, "scheduler is stopped")
	default:
	}

	task.markScheduled()
	select {
	case s.queue <- task:
		return nil
	default:
		return errcode.New(errcode.ScheduleError, "task queue is full")
	}
}

// dispatch pulls tasks off the queue and runs each inside a goroutine
// admitted by the concurrency semaphore.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case task, ok := <-s.queue:
			if !ok {
				return
			}
			s.mu.RLock()
			sem := s.sem
			s.mu.RUnlock()
			if err := sem.Acquire(s.ctx, 1); err != nil {
				// Scheduler is shutting down; let RunOnce be completed by a
				// stealing waiter instead (see Executor).
				continue
			}
			s.wg.Add(1)
			go func(t *Task) {
				defer s.wg.Done()
				defer sem.Release(1)
				t.RunOnce()
			}(task)
		}
	}
}

// Stop signals the dispatcher and in-flight workers to wind down. It does
// not wait for already-running tasks to finish; callers that need that
// should WaitFinish on their own tasks first.
func (s *Scheduler) Stop() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}
