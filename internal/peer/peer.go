// Package peer tracks the logical connections (clients, spawners, room
// processes) attached to the master server and the typed capabilities each
// one has acquired.
package peer

import (
	"io"
	"sync"

	"github.com/wardenms/warden/internal/core/wire"
)

// ExtensionKind enumerates the capabilities a peer can acquire over its
// lifetime. Each module reads and writes only its own kind.
type ExtensionKind int

const (
	// ExtensionAccount holds the *data.Account attached after authentication.
	ExtensionAccount ExtensionKind = iota
	// ExtensionSpawner holds the spawner registration owned by this peer.
	ExtensionSpawner
	// ExtensionRoom holds the registered room controlled by this peer.
	ExtensionRoom
	// ExtensionLobby holds the id of the lobby this peer is a member of.
	ExtensionLobby
	// ExtensionDashboardSource tags dashboard feed connections.
	ExtensionDashboardSource
)

// Peer is one logical connection to the master server. All writes to the
// underlying connection are serialized through the peer.
type Peer struct {
	id   uint64
	addr string
	conn io.Writer

	writeMu sync.Mutex
	extMu   sync.RWMutex
	exts    map[ExtensionKind]interface{}
}

func newPeer(id uint64, addr string, conn io.Writer) *Peer {
	return &Peer{
		id:   id,
		addr: addr,
		conn: conn,
		exts: make(map[ExtensionKind]interface{}),
	}
}

func (p *Peer) ID() uint64   { return p.id }
func (p *Peer) Addr() string { return p.addr }

// Send frames and writes a message to the peer. Concurrent senders are
// serialized so frames never interleave.
func (p *Peer) Send(m *wire.Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return m.Encode(p.conn)
}

// SetExtension attaches (or replaces) a capability value on the peer.
func (p *Peer) SetExtension(kind ExtensionKind, value interface{}) {
	p.extMu.Lock()
	defer p.extMu.Unlock()
	p.exts[kind] = value
}

// Extension returns the capability value of the given kind, if attached.
func (p *Peer) Extension(kind ExtensionKind) (interface{}, bool) {
	p.extMu.RLock()
	defer p.extMu.RUnlock()
	v, ok := p.exts[kind]
	return v, ok
}

// RemoveExtension detaches a capability from the peer.
func (p *Peer) RemoveExtension(kind ExtensionKind) {
	p.extMu.Lock()
	defer p.extMu.Unlock()
	delete(p.exts, kind)
}
