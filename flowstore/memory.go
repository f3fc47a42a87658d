package flowstore

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
)

// DefaultCleanupInterval is how often expired sessions are evicted
const DefaultCleanupInterval = time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time
}

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Sessions are stored serialized, so callers never share memory with the store.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	ttl             time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
}

var _ Repo = (*InMemoryRepo)(nil)

type MemoryOption func(*InMemoryRepo)

// WithTTL evicts sessions not written for ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(r *InMemoryRepo) {
		r.ttl = ttl
	}
}

func WithCleanupInterval(interval time.Duration) MemoryOption {
	return func(r *InMemoryRepo) {
		r.cleanupInterval = interval
	}
}

// NewInMemoryRepo creates a new in-memory flow session repository
func NewInMemoryRepo(opts ...MemoryOption) *InMemoryRepo {
	r := &InMemoryRepo{
		sessions:        make(map[string]*entry),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.ttl > 0 {
		go r.cleanupLoop()
	} else {
		close(r.cleanupDone)
	}
	return r
}

// Put stores a copy of session
func (r *InMemoryRepo) Put(_ context.Context, id string, session *FlowSession) error {
	if id == "" {
		return apperrors.ErrEmptyFlowID
	}
	if session == nil {
		return errors.New("session cannot be nil")
	}
	data, err := encode(session)
	if err != nil {
		return apperrors.Wrapf(err, "failed to encode flow session %s", id)
	}

	e := &entry{data: data}
	if r.ttl > 0 {
		e.expiresAt = time.Now().Add(r.ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = e
	return nil
}

// Get returns a copy of the session stored for id
func (r *InMemoryRepo) Get(_ context.Context, id string) (*FlowSession, error) {
	if id == "" {
		return nil, apperrors.ErrEmptyFlowID
	}

	r.mu.RLock()
	e, exists := r.sessions[id]
	r.mu.RUnlock()
	if !exists || e.expired(time.Now()) {
		return nil, apperrors.ErrSessionNotFound
	}

	session, err := decode(e.data)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to decode flow session %s", id)
	}
	return session, nil
}

// Delete removes a flow session
func (r *InMemoryRepo) Delete(_ context.Context, id string) error {
	if id == "" {
		return apperrors.ErrEmptyFlowID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included until evicted
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the cleanup goroutine and waits for it to finish.
func (r *InMemoryRepo) Close() error {
	r.closeOnce.Do(func() {
		close(r.stopCleanup)
		<-r.cleanupDone
	})
	return nil
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (r *InMemoryRepo) cleanupLoop() {
	defer close(r.cleanupDone)

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCleanup:
			return
		case <-ticker.C:
			r.cleanupExpired()
		}
	}
}

// cleanupExpired collects expired ids under the read lock and deletes them under the write lock.
func (r *InMemoryRepo) cleanupExpired() {
	now := time.Now()

	r.mu.RLock()
	var expired []string
	for id, e := range r.sessions {
		if e.expired(now) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	r.mu.Lock()
	for _, id := range expired {
		if e, ok := r.sessions[id]; ok && e.expired(now) {
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
}
