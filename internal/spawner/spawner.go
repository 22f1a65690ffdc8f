// Package spawner tracks the worker processes capable of launching room
// servers and shepherds each spawn request through its lifecycle.
package spawner

import (
	"sync"

	"github.com/wardenms/warden/internal/peer"
)

// Options describes a spawner's capabilities at registration time.
type Options struct {
	// Region the spawner's machine serves.
	Region string
	// Maximum number of concurrent room processes the machine will host.
	MaxProcesses int
	// Whitelist of executables the spawner is willing to launch.
	Executables []string
}

// Spawner represents one registered process-hosting machine. It is owned by
// the peer connection that registered it and destroyed when that peer
// disconnects.
type Spawner struct {
	id      uint32
	owner   *peer.Peer
	options Options

	mu           sync.Mutex
	processCount int
}

func newSpawner(id uint32, owner *peer.Peer, options Options) *Spawner {
	return &Spawner{id: id, owner: owner, options: options}
}

func (s *Spawner) ID() uint32        { return s.id }
func (s *Spawner) Owner() *peer.Peer { return s.owner }
func (s *Spawner) Region() string    { return s.options.Region }

// ProcessCount returns the number of spawn tasks currently charged against
// this spawner.
func (s *Spawner) ProcessCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processCount
}

// hasCapacity reports whether the spawner can take on another process.
func (s *Spawner) hasCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processCount < s.options.MaxProcesses
}

// reserve charges one process slot. Returns false when at capacity so the
// caller can fall back to another spawner.
func (s *Spawner) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processCount >= s.options.MaxProcesses {
		return false
	}
	s.processCount++
	return true
}

// release returns one process slot. The registry only calls this once per
// task so the count can never be double-decremented.
func (s *Spawner) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processCount > 0 {
		s.processCount--
	}
}
