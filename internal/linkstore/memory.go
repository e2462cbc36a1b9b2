package linkstore

import (
	"context"
	"sync"
	"time"

	"github.com/postpilot/link-server-go/internal/model"
	"github.com/postpilot/link-server-go/internal/util"
)

// MemoryStore is a mutex-guarded in-memory store for tests and
// single-node development. Entries past twice the TTL are swept by the
// cleanup job; entries between one and two TTLs are kept so
// TakeCompleted can report expiry instead of absence.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*model.PendingLink
	ttl     time.Duration

	now func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*model.PendingLink),
		ttl:     ttl,
		now:     time.Now,
	}
}

func entryKey(sessionID, platform string) string {
	// Session ids are bearer material; key on a digest so they never
	// sit in memory dumps or debug output verbatim.
	return util.HashToken(sessionID) + ":" + platform
}

func (s *MemoryStore) Begin(ctx context.Context, sessionID, platform string) (string, error) {
	state, err := util.GenerateToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A new initiate for the same platform replaces the prior attempt.
	s.entries[entryKey(sessionID, platform)] = &model.PendingLink{
		Platform:  platform,
		State:     state,
		CreatedAt: s.now(),
	}
	return state, nil
}

func (s *MemoryStore) VerifyState(ctx context.Context, sessionID, platform, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.entries[entryKey(sessionID, platform)]
	if !ok || link.Platform != platform {
		return ErrStateMismatch
	}
	if !util.ConstantTimeEqual(link.State, state) {
		return ErrStateMismatch
	}
	return nil
}

func (s *MemoryStore) AttachCallbackResult(ctx context.Context, sessionID, platform, state string, bundle model.TokenBundle, profile model.RemoteProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.entries[entryKey(sessionID, platform)]
	if !ok || link.Platform != platform || !util.ConstantTimeEqual(link.State, state) {
		return ErrStateMismatch
	}

	attach(link, bundle, profile)
	return nil
}

func (s *MemoryStore) TakeCompleted(ctx context.Context, sessionID, platform string) (*model.PendingLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(sessionID, platform)
	link, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}

	delete(s.entries, key)

	if s.now().Sub(link.CreatedAt) > s.ttl {
		return nil, ErrExpired
	}
	return link, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	cutoff := s.now().Add(-2 * s.ttl)
	for key, link := range s.entries {
		if link.CreatedAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}
