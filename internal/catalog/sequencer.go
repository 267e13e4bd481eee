package catalog

import (
	"context"
	"sync"
)

// Sequencer orders concurrent requests from one key (a visitor). Starting a
// request cancels the key's previous one; a request whose ticket is no longer
// the latest is stale and its result must be dropped.
type Sequencer struct {
	mu     sync.Mutex
	next   uint64
	latest map[string]*Ticket
}

func NewSequencer() *Sequencer {
	return &Sequencer{latest: make(map[string]*Ticket)}
}

type Ticket struct {
	Seq    uint64
	key    string
	cancel context.CancelFunc
	s      *Sequencer
}

// Begin issues a ticket and a context that is cancelled when a newer request
// for the same key begins or the ticket is done.
func (s *Sequencer) Begin(ctx context.Context, key string) (context.Context, *Ticket) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.next++
	t := &Ticket{Seq: s.next, key: key, cancel: cancel, s: s}
	if prev, ok := s.latest[key]; ok {
		prev.cancel()
	}
	s.latest[key] = t
	s.mu.Unlock()

	return ctx, t
}

// Stale reports whether a newer request for the same key has begun.
func (t *Ticket) Stale() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.latest[t.key] != t
}

// Done releases the ticket. It must be called once the result was used or dropped.
func (t *Ticket) Done() {
	t.cancel()
	t.s.mu.Lock()
	if t.s.latest[t.key] == t {
		delete(t.s.latest, t.key)
	}
	t.s.mu.Unlock()
}

// Pending returns the number of keys with a request in flight.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latest)
}
