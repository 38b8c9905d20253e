package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Suitable for a single instance only.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewMemoryStore creates an in-memory store that sweeps expired sessions every interval.
// Call Close to stop the sweeper.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = time.Minute
	}
	s := &MemoryStore{
		sessions: make(map[string]Session),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.sweep(interval)
	return s
}

func (s *MemoryStore) sweep(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Expire()
		}
	}
}

// Expire drops every session past its expiry.
func (s *MemoryStore) Expire() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
		}
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, sess *Session) error {
	s.mu.Lock()
	s.sessions[sess.ID] = *sess
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the sweeper goroutine.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}
