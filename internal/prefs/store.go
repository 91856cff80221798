package prefs

import (
	"context"
	"sort"
	"sync"

	"market-news-alerts/internal/model"
)

// Store provides access to per-user alert preferences. Get never fails with
// "not found": users without a stored record receive the onboarding defaults.
type Store interface {
	Get(ctx context.Context, userID string) (model.AlertPreference, error)
	Put(ctx context.Context, userID string, pref model.AlertPreference) error
	Users(ctx context.Context) ([]string, error)
}

// MemoryStore is the in-process Store used when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]model.AlertPreference
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]model.AlertPreference)}
}

// Get returns the stored preference or defaults when absent.
func (s *MemoryStore) Get(ctx context.Context, userID string) (model.AlertPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pref, ok := s.prefs[userID]; ok {
		return pref, nil
	}
	return model.DefaultPreference(), nil
}

// Put validates and stores a preference record.
func (s *MemoryStore) Put(ctx context.Context, userID string, pref model.AlertPreference) error {
	if userID == "" {
		return &model.ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if err := pref.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs[userID] = pref
	s.mu.Unlock()
	return nil
}

// Users lists every user with a stored preference record, sorted.
func (s *MemoryStore) Users(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.prefs))
	for id := range s.prefs {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

var _ Store = (*MemoryStore)(nil)
