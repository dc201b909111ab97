package composer

import (
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/registry"
)

// Sessions keeps exactly one composer per authoring session.
type Sessions struct {
	mu sync.Mutex

	registry  *registry.Registry
	submitter Submitter
	items     map[string]*Composer
}

func NewSessions(reg *registry.Registry, submitter Submitter) *Sessions {
	return &Sessions{
		registry:  reg,
		submitter: submitter,
		items:     make(map[string]*Composer),
	}
}

// Open returns the composer of the session, creating it on first use.
// A session always belongs to the author that opened it.
func (s *Sessions) Open(session, author string) (*Composer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.items[session]; ok {
		return c, c.author == author
	}
	c := New(s.registry, s.submitter, author)
	s.items[session] = c
	return c, true
}

func (s *Sessions) Get(session string) (*Composer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[session]
	return c, ok
}

// Close discards the draft and forgets the session.
func (s *Sessions) Close(session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[session]
	if !ok {
		return nil
	}
	if err := c.Discard(); err != nil {
		return err
	}
	delete(s.items, session)
	return nil
}

// Prune forgets sessions left untouched for longer than maxIdle. Sessions
// with a submission in flight are kept.
func (s *Sessions) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := s.registry.Now().Add(-maxIdle)
	var count int
	for key, c := range s.items {
		if c.IdleSince().After(deadline) {
			continue
		}
		if err := c.Discard(); err != nil {
			continue
		}
		delete(s.items, key)
		count++
	}
	return count
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
