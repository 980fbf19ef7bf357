package memory

import (
	"sort"
	"sync"

	"github.com/Wyydra/callrelay/internal/core/domain"
	"github.com/Wyydra/callrelay/internal/core/port"
)

// Registry implements port.IdentityRegistry with a forward and a reverse
// index kept in step under one lock.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[domain.Identity]port.Conn
	byConn     map[domain.ConnID]domain.Identity
}

func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[domain.Identity]port.Conn),
		byConn:     make(map[domain.ConnID]domain.Identity),
	}
}

func (r *Registry) Register(id domain.Identity, conn port.Conn) error {
	if err := id.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.byIdentity[id]; ok {
		if current.ID() == conn.ID() {
			return nil
		}
		return domain.ErrAlreadyRegistered
	}
	// one identity per connection
	if _, ok := r.byConn[conn.ID()]; ok {
		return domain.ErrAlreadyRegistered
	}

	r.byIdentity[id] = conn
	r.byConn[conn.ID()] = id
	return nil
}

func (r *Registry) Lookup(id domain.Identity) (port.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byIdentity[id]
	return conn, ok
}

func (r *Registry) IdentityOf(connID domain.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConn[connID]
	return id, ok
}

func (r *Registry) Unregister(connID domain.ConnID) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	delete(r.byIdentity, id)
	return id, true
}

// Identities returns the registered identities in sorted order.
func (r *Registry) Identities() []domain.Identity {
	r.mu.RLock()
	ids := make([]domain.Identity, 0, len(r.byIdentity))
	for id := range r.byIdentity {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
