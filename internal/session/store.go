package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kapu/pitch-coach-go/internal/domain"
)

// ErrNotFound is returned when a session id is unknown or has expired.
var ErrNotFound = errors.New("session not found")

// Store persists whole session states keyed by id.
type Store interface {
	Get(ctx context.Context, id string) (domain.SessionState, error)
	Save(ctx context.Context, state domain.SessionState) error
	Delete(ctx context.Context, id string) error
}

// Locker is the per-session busy flag.
type Locker interface {
	TryAcquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in a bounded, expiring LRU.
type MemoryStore struct {
	cache *expirable.LRU[string, domain.SessionState]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, domain.SessionState](size, nil, ttl),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.SessionState, error) {
	state, ok := s.cache.Get(id)
	if !ok {
		return domain.SessionState{}, ErrNotFound
	}
	return state.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, state domain.SessionState) error {
	s.cache.Add(state.ID, state.Clone())
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Remove(id)
	return nil
}

// Len reports how many sessions are live.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// MemoryLocker is a process-local busy flag set.
type MemoryLocker struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{busy: make(map[string]struct{})}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.busy[id]; held {
		return false, nil
	}
	l.busy[id] = struct{}{}
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, id string) error {
	l.mu.Lock()
	delete(l.busy, id)
	l.mu.Unlock()
	return nil
}
