package store

import (
	"sync"

	"structurizer/internal/models"
)

// StateStore holds the latest published snapshot and fans it out to subscribers.
// Readers only ever observe whole snapshots.
type StateStore struct {
	mu      sync.RWMutex
	seq     uint64
	current models.Snapshot
	nextID  int
	subs    map[int]chan models.Snapshot
}

// NewStateStore creates a store seeded with initial.
func NewStateStore(initial models.Snapshot) *StateStore {
	return &StateStore{
		current: initial.Clone(),
		subs:    make(map[int]chan models.Snapshot),
	}
}

// Publish assigns the next sequence number to snap, makes it current and notifies
// subscribers. A slow subscriber only ever misses intermediate snapshots, never the
// latest one.
func (s *StateStore) Publish(snap models.Snapshot) models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	snap = snap.Clone()
	snap.Seq = s.seq
	s.current = snap

	for _, ch := range s.subs {
		offer(ch, snap.Clone())
	}
	return snap.Clone()
}

func offer(ch chan models.Snapshot, snap models.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Snapshot returns a copy of the current snapshot.
func (s *StateStore) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Subscribe returns a channel that receives every subsequent snapshot (coalesced
// when the reader falls behind) and a cancel func that closes it.
func (s *StateStore) Subscribe() (<-chan models.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan models.Snapshot, 1)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}
