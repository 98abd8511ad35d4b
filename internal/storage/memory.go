package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/uaru-shit/joingate/internal/domain"
)

// implements PollStore in process memory
type MemoryStore struct {
	mutex  sync.RWMutex
	open   []*domain.PollRecord
	closed []*domain.PollRecord

	indexesEnsured bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertOpen(_ context.Context, poll *domain.PollRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, existing := range s.open {
		if existing.PollID == poll.PollID {
			return fmt.Errorf("%w: %s", domain.ErrDuplicatePoll, poll.PollID)
		}
	}

	s.open = append(s.open, poll.Clone())

	return nil
}

func (s *MemoryStore) InsertClosed(_ context.Context, poll *domain.PollRecord) error {
	if poll.Results == nil {
		return fmt.Errorf("closed poll %s has no results", poll.PollID)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.closed = append(s.closed, poll.Clone())

	return nil
}

func (s *MemoryStore) ListOpen(_ context.Context) ([]*domain.PollRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	polls := cloneAll(s.open)
	sort.SliceStable(polls, func(i, j int) bool {
		return polls[i].ExpirationTime.Before(polls[j].ExpirationTime)
	})

	return polls, nil
}

// ListClosed is not part of PollStore; the closed collection is only read back by tests.
func (s *MemoryStore) ListClosed() []*domain.PollRecord {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return cloneAll(s.closed)
}

func (s *MemoryStore) FindOpen(_ context.Context, pollID string) (*domain.PollRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, poll := range s.open {
		if poll.PollID == pollID {
			return poll.Clone(), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrPollNotFound, pollID)
}

func (s *MemoryStore) ClosedPollIDs(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	seen := mapset.NewThreadUnsafeSet[string]()
	var ids []string

	for _, poll := range s.closed {
		if seen.Add(poll.PollID) {
			ids = append(ids, poll.PollID)
		}
	}

	return ids, nil
}

func (s *MemoryStore) FindOpenByPollIDs(_ context.Context, pollIDs []string) ([]*domain.PollRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	wanted := mapset.NewThreadUnsafeSet(pollIDs...)
	var polls []*domain.PollRecord

	for _, poll := range s.open {
		if wanted.Contains(poll.PollID) {
			polls = append(polls, poll.Clone())
		}
	}

	return polls, nil
}

func (s *MemoryStore) DeleteOpenByPollIDs(_ context.Context, pollIDs []string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doomed := mapset.NewThreadUnsafeSet(pollIDs...)
	var (
		kept    []*domain.PollRecord
		deleted int64
	)

	for _, poll := range s.open {
		if doomed.Contains(poll.PollID) {
			deleted++
			continue
		}

		kept = append(kept, poll)
	}

	s.open = kept

	return deleted, nil
}

func (s *MemoryStore) MarkOpenStatus(_ context.Context, pollID string, status domain.PollStatus, attempts int, results *domain.PollResults) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, poll := range s.open {
		if poll.PollID == pollID {
			poll.Status = status
			poll.ExpireAttempts = attempts

			if results != nil {
				poll.Results = results.Clone()
			}

			return nil
		}
	}

	return fmt.Errorf("%w: %s", domain.ErrPollNotFound, pollID)
}

func (s *MemoryStore) EnsureIndexes(_ context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.indexesEnsured = true

	return nil
}

func (s *MemoryStore) IndexesEnsured() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.indexesEnsured
}

func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

func cloneAll(polls []*domain.PollRecord) []*domain.PollRecord {
	out := make([]*domain.PollRecord, 0, len(polls))
	for _, poll := range polls {
		out = append(out, poll.Clone())
	}

	return out
}
