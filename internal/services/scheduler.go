package services

import (
	"log/slog"
	"sync"
	"time"
)

// a due task that finds its poll busy fires again after this
const busyRetryDelay = 50 * time.Millisecond

type scheduledTask struct {
	timer *time.Timer
	seq   uint64
}

// ExpirationScheduler keeps one cancelable deferred task per poll id.
// At most one task or Acquire holder runs for a poll at a time.
type ExpirationScheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*scheduledTask
	running map[string]struct{}
	seq     uint64
	stopped bool

	inflight sync.WaitGroup
}

func NewExpirationScheduler(logger *slog.Logger) *ExpirationScheduler {
	return &ExpirationScheduler{
		logger:  logger,
		tasks:   make(map[string]*scheduledTask),
		running: make(map[string]struct{}),
	}
}

// Schedule runs fn once after delay, replacing any task pending for the same poll.
// Returns false if the scheduler has been stopped.
func (s *ExpirationScheduler) Schedule(pollID string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	if old, ok := s.tasks[pollID]; ok {
		old.timer.Stop()
	}

	if delay < 0 {
		delay = 0
	}

	s.seq++
	task := &scheduledTask{seq: s.seq}
	task.timer = time.AfterFunc(delay, func() {
		if !s.claim(pollID, task.seq) {
			return
		}
		defer s.Release(pollID)

		fn()
	})
	s.tasks[pollID] = task

	s.logger.Debug("expiration scheduled",
		slog.String("poll_id", pollID),
		slog.String("delay", delay.String()))

	return true
}

// claim moves the task from the registry to running; a replaced or canceled task loses the claim.
func (s *ExpirationScheduler) claim(pollID string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[pollID]
	if !ok || task.seq != seq {
		return false
	}

	if _, busy := s.running[pollID]; busy {
		task.timer.Reset(busyRetryDelay)
		return false
	}

	delete(s.tasks, pollID)
	s.markRunning(pollID)

	return true
}

// caller holds mu
func (s *ExpirationScheduler) markRunning(pollID string) {
	s.running[pollID] = struct{}{}
	s.inflight.Add(1)
}

// Acquire cancels the pending task of a poll and marks it running so no timer can fire for it
// until Release. It fails while a task for the poll is running or after Stop.
func (s *ExpirationScheduler) Acquire(pollID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	if _, busy := s.running[pollID]; busy {
		return false
	}

	if task, ok := s.tasks[pollID]; ok {
		task.timer.Stop()
		delete(s.tasks, pollID)
	}

	s.markRunning(pollID)

	return true
}

func (s *ExpirationScheduler) Release(pollID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.running[pollID]; !ok {
		return
	}

	delete(s.running, pollID)
	s.inflight.Done()
}

func (s *ExpirationScheduler) Cancel(pollID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[pollID]
	if !ok {
		return false
	}

	task.timer.Stop()
	delete(s.tasks, pollID)

	s.logger.Debug("expiration canceled", slog.String("poll_id", pollID))

	return true
}

func (s *ExpirationScheduler) IsRunning(pollID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.running[pollID]

	return ok
}

func (s *ExpirationScheduler) IsPending(pollID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tasks[pollID]

	return ok
}

func (s *ExpirationScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks)
}

// Stop cancels every pending task, rejects new ones and waits for the running ones.
func (s *ExpirationScheduler) Stop() {
	s.mu.Lock()

	for id, task := range s.tasks {
		task.timer.Stop()
		delete(s.tasks, id)
	}

	s.stopped = true
	s.mu.Unlock()

	s.inflight.Wait()
}
