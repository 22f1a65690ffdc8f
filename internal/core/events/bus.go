// Package events implements the typed publish/subscribe bus over which the
// orchestration modules announce state changes to each other and to the
// dashboard without direct coupling.
package events

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// Kind identifies one category of event on the bus.
type Kind int

const (
	PeerConnected Kind = iota
	PeerDisconnected
	SpawnerRegistered
	SpawnStatusChanged
	RoomRegistered
	RoomDestroyed
	LobbyCreated
	LobbyDestroyed
	LobbyMemberJoined
	LobbyMemberLeft
	LobbyStateChanged
	LobbyMasterChanged
	LobbyPropertyChanged
	LobbyMemberPropertyChanged
	AnalyticsFlushed
)

func (k Kind) String() string {
	switch k {
	case PeerConnected:
		return "peer_connected"
	case PeerDisconnected:
		return "peer_disconnected"
	case SpawnerRegistered:
		return "spawner_registered"
	case SpawnStatusChanged:
		return "spawn_status_changed"
	case RoomRegistered:
		return "room_registered"
	case RoomDestroyed:
		return "room_destroyed"
	case LobbyCreated:
		return "lobby_created"
	case LobbyDestroyed:
		return "lobby_destroyed"
	case LobbyMemberJoined:
		return "lobby_member_joined"
	case LobbyMemberLeft:
		return "lobby_member_left"
	case LobbyStateChanged:
		return "lobby_state_changed"
	case LobbyMasterChanged:
		return "lobby_master_changed"
	case LobbyPropertyChanged:
		return "lobby_property_changed"
	case LobbyMemberPropertyChanged:
		return "lobby_member_property_changed"
	case AnalyticsFlushed:
		return "analytics_flushed"
	}
	return "unknown"
}

// Event is one published occurrence. Payload contents are defined by the
// publishing module.
type Event struct {
	Kind    Kind
	Payload interface{}
}

// Handler consumes published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus fans events out to subscribers by kind. A panicking subscriber is
// logged and isolated so it cannot break dispatch to the others.
type Bus struct {
	logger *logrus.Logger

	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
}

func NewBus(logger *logrus.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[Kind][]Handler),
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers a handler for every event kind. The dashboard event
// feed uses this to mirror the whole bus.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish dispatches the event to every matching subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.handlers[e.Kind])+len(b.all))
	matched = append(matched, b.handlers[e.Kind]...)
	matched = append(matched, b.all...)
	b.mu.RUnlock()

	for _, h := range matched {
		b.dispatch(h, e)
	}
}

func (b *Bus) dispatch(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("event subscriber panicked on event %d: %v\n%s",
				e.Kind, r, debug.Stack())
		}
	}()
	h(e)
}
