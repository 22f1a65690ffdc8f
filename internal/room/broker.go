package room

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core/events"
	"github.com/wardenms/warden/internal/core/props"
	"github.com/wardenms/warden/internal/peer"
)

var (
	ErrRoomNotFound      = errors.New("no room with that id")
	ErrRoomFull          = errors.New("room full")
	ErrInvalidPassword   = errors.New("invalid room password")
	ErrInvalidToken      = errors.New("access token is invalid, consumed, or expired")
	ErrNotRoomOwner      = errors.New("room is controlled by a different peer")
	ErrAlreadyRegistered = errors.New("peer already controls a registered room")
)

// Access binds a peer to a specific room address/port through a single-use
// token. The custom options may differ per grant (team assignment and the
// like).
type Access struct {
	Token   string
	RoomID  uint32
	PeerID  uint64
	Address string
	Port    int
	Custom  props.Properties

	// Set on validation so the expiry path knows the slot is genuinely held.
	consumed atomic.Bool
}

// Broker owns the room table and the short-lived token store. Tokens are
// consumed exactly once; replay and expiry both surface as ErrInvalidToken,
// on which the room process is expected to disconnect the presenting
// connection within its one second grace period.
type Broker struct {
	logger   *logrus.Logger
	bus      *events.Bus
	tokenTTL time.Duration

	mu     sync.RWMutex
	rooms  map[uint32]*Room
	nextID uint32

	tokenMu sync.Mutex
	tokens  *gocache.Cache
}

func NewBroker(logger *logrus.Logger, bus *events.Bus, tokenTTL time.Duration) *Broker {
	b := &Broker{
		logger:   logger,
		bus:      bus,
		tokenTTL: tokenTTL,
		rooms:    make(map[uint32]*Room),
		tokens:   gocache.New(tokenTTL, 2*tokenTTL),
	}
	// A token expelled without ever being validated means the client never
	// showed up at the room; its optimistically admitted slot goes back.
	b.tokens.OnEvicted(func(_ string, v interface{}) {
		access := v.(*Access)
		if access.consumed.Load() {
			return
		}
		if room, err := b.Room(access.RoomID); err == nil {
			room.evict(access.PeerID)
			b.logger.Infof("[ROOMS] released slot for peer %d in room %d after token expiry", access.PeerID, access.RoomID)
		}
	})
	return b
}

// RegisterRoom creates a Room record owned by the registering process peer.
func (b *Broker) RegisterRoom(p *peer.Peer, options Options) (*Room, error) {
	if _, ok := p.Extension(peer.ExtensionRoom); ok {
		return nil, ErrAlreadyRegistered
	}

	b.mu.Lock()
	b.nextID++
	room := newRoom(b.nextID, p, options)
	b.rooms[room.id] = room
	b.mu.Unlock()

	p.SetExtension(peer.ExtensionRoom, room)
	b.logger.Infof("[ROOMS] registered room %d (%q) at %s:%d", room.id, options.Name, options.Address, options.Port)
	b.bus.Publish(events.Event{Kind: events.RoomRegistered, Payload: room})
	return room, nil
}

// DestroyRoom removes the room. Only its owning peer may destroy it.
func (b *Broker) DestroyRoom(p *peer.Peer, roomID uint32) error {
	room, err := b.Room(roomID)
	if err != nil {
		return err
	}
	if room.Owner() != p {
		return ErrNotRoomOwner
	}
	b.removeRoom(room)
	return nil
}

func (b *Broker) removeRoom(room *Room) {
	b.mu.Lock()
	delete(b.rooms, room.id)
	b.mu.Unlock()

	room.Owner().RemoveExtension(peer.ExtensionRoom)
	b.logger.Infof("[ROOMS] destroyed room %d (%q)", room.id, room.options.Name)
	b.bus.Publish(events.Event{Kind: events.RoomDestroyed, Payload: room})
}

// GetAccess validates the request against the room's password and capacity,
// optimistically counts the peer against the room, and issues a token.
func (b *Broker) GetAccess(p *peer.Peer, roomID uint32, password string, custom props.Properties) (*Access, error) {
	room, err := b.Room(roomID)
	if err != nil {
		return nil, err
	}
	if room.options.Password != "" && room.options.Password != password {
		return nil, ErrInvalidPassword
	}
	if !room.admit(p.ID()) {
		return nil, ErrRoomFull
	}

	access := &Access{
		Token:   uuid.NewString(),
		RoomID:  room.id,
		PeerID:  p.ID(),
		Address: room.options.Address,
		Port:    room.options.Port,
		Custom:  custom.Clone(),
	}
	b.storeToken(access)
	return access, nil
}

// ProvideAccessCheck lets a room process pre-validate a client before that
// client ever connects to the master (the lobby-driven flow). The token is
// supplied by the room rather than generated here.
func (b *Broker) ProvideAccessCheck(p *peer.Peer, roomID uint32, peerID uint64, token string, custom props.Properties) error {
	room, err := b.Room(roomID)
	if err != nil {
		return err
	}
	if room.Owner() != p {
		return ErrNotRoomOwner
	}
	if !room.admit(peerID) {
		return ErrRoomFull
	}

	b.storeToken(&Access{
		Token:   token,
		RoomID:  room.id,
		PeerID:  peerID,
		Address: room.options.Address,
		Port:    room.options.Port,
		Custom:  custom.Clone(),
	})
	return nil
}

// ValidateAccess consumes a token presented by a connecting client. It may
// only be called by the room process the token was issued for; a second
// validation of the same token fails.
func (b *Broker) ValidateAccess(p *peer.Peer, token string) (*Access, error) {
	b.tokenMu.Lock()
	defer b.tokenMu.Unlock()

	v, ok := b.tokens.Get(token)
	if !ok {
		return nil, ErrInvalidToken
	}
	access := v.(*Access)

	room, err := b.Room(access.RoomID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if room.Owner() != p {
		return nil, ErrNotRoomOwner
	}

	access.consumed.Store(true)
	b.tokens.Delete(token)
	return access, nil
}

// PlayerLeft releases the peer's slot in the room. Idempotent: reporting the
// same departure twice does not decrement twice.
func (b *Broker) PlayerLeft(roomID uint32, peerID uint64) error {
	room, err := b.Room(roomID)
	if err != nil {
		return err
	}
	room.evict(peerID)
	return nil
}

// HandleDisconnect destroys any room owned by the departed peer.
func (b *Broker) HandleDisconnect(p *peer.Peer) {
	if ext, ok := p.Extension(peer.ExtensionRoom); ok {
		b.removeRoom(ext.(*Room))
	}
}

// Room returns the registered room with the given id.
func (b *Broker) Room(roomID uint32) (*Room, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	room, ok := b.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Rooms returns a snapshot of all registered rooms.
func (b *Broker) Rooms() []*Room {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rooms := make([]*Room, 0, len(b.rooms))
	for _, room := range b.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (b *Broker) storeToken(access *Access) {
	b.tokenMu.Lock()
	defer b.tokenMu.Unlock()
	b.tokens.Set(access.Token, access, gocache.DefaultExpiration)
}
