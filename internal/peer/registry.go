package peer

import (
	"io"
	"sync"
)

// DisconnectHook is invoked after a peer has been removed from the registry.
// Modules register hooks to release the resources (spawners, rooms, lobby
// seats) the departed peer owned.
type DisconnectHook func(*Peer)

// Registry is the authoritative table of connected peers.
type Registry struct {
	mu     sync.RWMutex
	peers  map[uint64]*Peer
	nextID uint64
	hooks  []DisconnectHook
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[uint64]*Peer)}
}

// OnDisconnect registers a cleanup hook. Hooks run in registration order on
// the goroutine that removed the peer.
func (r *Registry) OnDisconnect(hook DisconnectHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Add creates a Peer for the connection and begins tracking it.
func (r *Registry) Add(addr string, conn io.Writer) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	p := newPeer(r.nextID, addr, conn)
	r.peers[p.id] = p
	return p
}

// Remove stops tracking the peer and fires the disconnect hooks. Removing an
// unknown peer is a no-op.
func (r *Registry) Remove(p *Peer) {
	r.mu.Lock()
	if _, ok := r.peers[p.id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.peers, p.id)
	hooks := make([]DisconnectHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(p)
	}
}

// Get returns the tracked peer with the given id.
func (r *Registry) Get(id uint64) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Count returns the number of currently tracked peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
