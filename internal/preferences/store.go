// Package preferences persists user profiles and applies the per-run profile
// delta. Updater is the only code path that writes a Profile.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonathan/daily-brief/internal/types"
)

// Store persists one Profile per user id.
//
// Get returns the default profile for an unknown user and never fails for
// that reason. Put replaces the whole record atomically: a concurrent Get
// observes either the previous record or the new one.
type Store interface {
	Get(ctx context.Context, userID string) (types.Profile, error)
	Put(ctx context.Context, userID string, profile types.Profile) error
}

// ErrEmptyUserID is returned for a blank user id.
var ErrEmptyUserID = errors.New("user id is required")

// StorageError reports an unreachable or corrupt store.
type StorageError struct {
	Op     string
	UserID string
	Cause  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s for user %q: %v", e.Op, e.UserID, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// userLocks hands out one mutex per user id.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// MemoryStore keeps profiles in memory. It is used by tests and by the
// server when no durable driver is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]types.Profile
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]types.Profile)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (types.Profile, error) {
	if userID == "" {
		return types.Profile{}, &StorageError{Op: "get", Cause: ErrEmptyUserID}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return types.NewProfile(userID), nil
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, userID string, profile types.Profile) error {
	if userID == "" {
		return &StorageError{Op: "put", Cause: ErrEmptyUserID}
	}
	profile.UserID = userID
	s.mu.Lock()
	s.profiles[userID] = profile.Clone()
	s.mu.Unlock()
	return nil
}
