package client

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs the network I/O of the client. Submit must not block the caller.
type Executor interface {
	Submit(task func())
}

// poolExecutor runs every task in its own goroutine but at most size at a time.
type poolExecutor struct {
	sem *semaphore.Weighted
}

// NewPoolExecutor creates an executor that runs at most size tasks in parallel
func NewPoolExecutor(size int) Executor {
	return &poolExecutor{sem: semaphore.NewWeighted(int64(size))}
}

func (e *poolExecutor) Submit(task func()) {
	go func() {
		// Acquire only fails for a cancelled context
		_ = e.sem.Acquire(context.Background(), 1)
		defer e.sem.Release(1)
		task()
	}()
}

// sequencer runs tasks one after the other in submission order on an executor.
// Commands of a session pass through it, which keeps their sequence numbers in order.
type sequencer struct {
	executor Executor
	mu       sync.Mutex
	queue    []func()
	running  bool
}

func newSequencer(executor Executor) *sequencer {
	return &sequencer{executor: executor}
}

func (s *sequencer) Submit(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, task)
	if !s.running {
		s.running = true
		s.executor.Submit(s.drain)
	}
}

// drain runs queued tasks until the queue is empty
func (s *sequencer) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		task()
	}
}
