package service

import (
	"sync"

	"github.com/Wyydra/callrelay/internal/core/domain"
)

// pairSlot serializes everything that happens to one pair.
type pairSlot struct {
	mu      sync.Mutex
	session *domain.Session
	refs    int
}

// sessionTable owns one slot per pair that has a session or an envelope in
// flight. Lock order is slot before table; the table lock is never held
// while waiting on a slot.
type sessionTable struct {
	mu         sync.Mutex
	slots      map[domain.PairKey]*pairSlot
	byIdentity map[domain.Identity]map[domain.PairKey]struct{}
	active     int
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		slots:      make(map[domain.PairKey]*pairSlot),
		byIdentity: make(map[domain.Identity]map[domain.PairKey]struct{}),
	}
}

// acquire returns the locked slot for key, creating it if needed.
func (t *sessionTable) acquire(key domain.PairKey) *pairSlot {
	t.mu.Lock()
	slot, ok := t.slots[key]
	if !ok {
		slot = &pairSlot{}
		t.slots[key] = slot
		t.index(key.Low, key)
		t.index(key.High, key)
	}
	slot.refs++
	t.mu.Unlock()

	slot.mu.Lock()
	return slot
}

// release stores next as the pair's session and unlocks the slot. The slot
// is dropped once nobody holds it and the pair is idle.
func (t *sessionTable) release(key domain.PairKey, slot *pairSlot, next *domain.Session) {
	t.mu.Lock()
	switch {
	case slot.session == nil && next != nil:
		t.active++
	case slot.session != nil && next == nil:
		t.active--
	}
	slot.session = next
	slot.refs--
	if slot.refs == 0 && next == nil {
		delete(t.slots, key)
		t.unindex(key.Low, key)
		t.unindex(key.High, key)
	}
	t.mu.Unlock()

	slot.mu.Unlock()
}

// keysFor lists the pairs id currently takes part in, including pairs with
// an envelope in flight.
func (t *sessionTable) keysFor(id domain.Identity) []domain.PairKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]domain.PairKey, 0, len(t.byIdentity[id]))
	for k := range t.byIdentity[id] {
		keys = append(keys, k)
	}
	return keys
}

func (t *sessionTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *sessionTable) index(id domain.Identity, key domain.PairKey) {
	keys, ok := t.byIdentity[id]
	if !ok {
		keys = make(map[domain.PairKey]struct{})
		t.byIdentity[id] = keys
	}
	keys[key] = struct{}{}
}

func (t *sessionTable) unindex(id domain.Identity, key domain.PairKey) {
	keys := t.byIdentity[id]
	delete(keys, key)
	if len(keys) == 0 {
		delete(t.byIdentity, id)
	}
}
