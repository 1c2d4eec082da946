// Package session keeps the per-browser booking sessions. Sessions are
// memory only: losing one on restart just means the visitor reloads the
// page, the backend still owns every booking.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nganya/nganya-web/internal/service/flow"
)

type entry struct {
	sess     *flow.Session
	lastSeen time.Time
}

type Store struct {
	svc *flow.Service
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

func NewStore(svc *flow.Service, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &Store{
		svc:     svc,
		ttl:     ttl,
		entries: make(map[string]*entry),
	}
}

// Open creates a session and returns its cookie id.
func (s *Store) Open() (string, *flow.Session) {
	id := uuid.NewString()
	sess := s.svc.NewSession()

	s.mu.Lock()
	s.entries[id] = &entry{sess: sess, lastSeen: time.Now()}
	s.mu.Unlock()

	return id, sess
}

// Get returns a live session and refreshes its idle clock.
func (s *Store) Get(id string) (*flow.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}

	e.lastSeen = time.Now()

	return e.sess, true
}

// Close tears a session down, stopping any active payment poll.
func (s *Store) Close(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if ok {
		e.sess.Close()
	}
}

// Run sweeps idle sessions until ctx is cancelled, then closes all
// remaining ones so no poll loop outlives the server.
func (s *Store) Run(ctx context.Context) error {
	t := time.NewTicker(s.ttl / 2)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return ctx.Err()
		case now := <-t.C:
			s.sweep(now)
		}
	}
}

func (s *Store) sweep(now time.Time) {
	var expired []*entry

	s.mu.Lock()
	for id, e := range s.entries {
		if now.Sub(e.lastSeen) > s.ttl {
			expired = append(expired, e)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		e.sess.Close()
	}
}

func (s *Store) closeAll() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.sess.Close()
	}
}
