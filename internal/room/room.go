// Package room tracks live game-server instances and brokers the single-use
// access tokens clients present to them.
package room

import (
	"sync"

	"github.com/wardenms/warden/internal/core/props"
	"github.com/wardenms/warden/internal/peer"
)

// Options describes a room at registration time.
type Options struct {
	Name       string
	Address    string
	Port       int
	MaxPlayers int
	Password   string
	IsPublic   bool
	Region     string
	Properties props.Properties
}

// Room is one registered game-server instance. It is owned by the process
// peer that registered it and destroyed when that peer disconnects.
type Room struct {
	id      uint32
	owner   *peer.Peer
	options Options

	mu     sync.Mutex
	online map[uint64]bool
}

func newRoom(id uint32, owner *peer.Peer, options Options) *Room {
	return &Room{
		id:      id,
		owner:   owner,
		options: options,
		online:  make(map[uint64]bool),
	}
}

func (r *Room) ID() uint32        { return r.id }
func (r *Room) Owner() *peer.Peer { return r.owner }
func (r *Room) Options() Options  { return r.options }

// OnlineCount returns the number of peers currently counted against the
// room's capacity.
func (r *Room) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.online)
}

// admit optimistically counts the peer against the room's capacity. Returns
// false when the room is full. Admitting an already-admitted peer succeeds
// without consuming another slot.
func (r *Room) admit(peerID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.online[peerID] {
		return true
	}
	if len(r.online) >= r.options.MaxPlayers {
		return false
	}
	r.online[peerID] = true
	return true
}

// evict releases the peer's slot. Idempotent.
func (r *Room) evict(peerID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, peerID)
}
