package lobby

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core/events"
	"github.com/wardenms/warden/internal/core/props"
	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/room"
	"github.com/wardenms/warden/internal/spawner"
)

var (
	ErrLobbyNotFound   = errors.New("no lobby with that id")
	ErrFactoryNotFound = errors.New("no lobby factory with that id")
	ErrNotInLobby      = errors.New("peer is not a member of a lobby")
)

// Factory builds a lobby Config from creation options. Game modes register
// factories so clients can instantiate lobbies by id.
type Factory func(options props.Properties) (Config, error)

// membership links a peer back to its lobby seat via the lobby extension.
type membership struct {
	lobbyID  uint32
	username string
}

// Engine owns the lobby table and drives the start-game flow through the
// spawner registry and room access broker.
//
// Lock ordering: engine.mu, then a single lobby's mutex. Calls into the
// spawner registry and room broker are made without holding either.
type Engine struct {
	logger       *logrus.Logger
	bus          *events.Bus
	spawners     *spawner.Registry
	rooms        *room.Broker
	spawnTimeout time.Duration

	mu        sync.RWMutex
	factories map[string]Factory
	lobbies   map[uint32]*Lobby
	nextID    uint32
}

func NewEngine(
	logger *logrus.Logger,
	bus *events.Bus,
	spawners *spawner.Registry,
	rooms *room.Broker,
	spawnTimeout time.Duration,
) *Engine {
	return &Engine{
		logger:       logger,
		bus:          bus,
		spawners:     spawners,
		rooms:        rooms,
		spawnTimeout: spawnTimeout,
		factories:    make(map[string]Factory),
		lobbies:      make(map[uint32]*Lobby),
	}
}

// RegisterFactory makes a lobby shape available under the given id.
func (e *Engine) RegisterFactory(id string, f Factory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factories[id] = f
}

// CreateLobby instantiates a lobby from a registered factory. The lobby
// starts in Preparation and becomes joinable once setup completes.
func (e *Engine) CreateLobby(factoryID string, options props.Properties) (*Lobby, error) {
	e.mu.RLock()
	factory, ok := e.factories[factoryID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrFactoryNotFound
	}

	config, err := factory(options)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.nextID++
	l := newLobby(e.nextID, config)
	e.lobbies[l.id] = l
	e.mu.Unlock()

	e.bus.Publish(events.Event{Kind: events.LobbyCreated, Payload: l})

	// Setup is synchronous today; the Preparation state exists so that
	// factories doing slow provisioning have somewhere to live.
	l.setState(StateIdle)
	e.publishState(l)

	e.logger.Infof("[LOBBY] created lobby %d (%q) from factory %q", l.id, config.Name, factoryID)
	return l, nil
}

// JoinLobby seats the peer in the lobby under the given username. The first
// member to join becomes game-master.
func (e *Engine) JoinLobby(lobbyID uint32, p *peer.Peer, username string) (*Member, error) {
	l, err := e.Lobby(lobbyID)
	if err != nil {
		return nil, err
	}

	m, becameMaster, err := l.addMember(p, username)
	if err != nil {
		return nil, err
	}
	p.SetExtension(peer.ExtensionLobby, membership{lobbyID: l.id, username: username})

	l.broadcast(memberNotice(NoticeMemberJoined, username))
	e.bus.Publish(events.Event{Kind: events.LobbyMemberJoined, Payload: l})
	if becameMaster {
		l.broadcast(memberNotice(NoticeMasterChanged, username))
		e.bus.Publish(events.Event{Kind: events.LobbyMasterChanged, Payload: l})
	}
	return m, nil
}

// LeaveLobby unseats the member. Mastership transfers deterministically; an
// emptied lobby is destroyed.
func (e *Engine) LeaveLobby(lobbyID uint32, username string) error {
	l, err := e.Lobby(lobbyID)
	if err != nil {
		return err
	}

	m, err := l.member(username)
	if err != nil {
		return err
	}
	m.peer.RemoveExtension(peer.ExtensionLobby)

	newMaster, empty, err := l.removeMember(username)
	if err != nil {
		return err
	}

	if empty {
		e.destroyLobby(l)
		return nil
	}

	l.broadcast(memberNotice(NoticeMemberLeft, username))
	e.bus.Publish(events.Event{Kind: events.LobbyMemberLeft, Payload: l})
	if newMaster != "" {
		l.broadcast(memberNotice(NoticeMasterChanged, newMaster))
		e.bus.Publish(events.Event{Kind: events.LobbyMasterChanged, Payload: l})
	}
	return nil
}

// SetLobbyProperties merges lobby-wide properties. Only the game-master may
// mutate them. Members receive the delta, not a full snapshot.
func (e *Engine) SetLobbyProperties(lobbyID uint32, username string, delta props.Properties) error {
	l, err := e.Lobby(lobbyID)
	if err != nil {
		return err
	}
	if l.Master() != username {
		return ErrNotGameMaster
	}

	changed := l.setProperties(delta)
	if len(changed) == 0 {
		return nil
	}
	l.broadcast(propertiesNotice(NoticeProperties, "", changed))
	e.bus.Publish(events.Event{Kind: events.LobbyPropertyChanged, Payload: l})
	return nil
}

// SetMemberProperties merges the member's own properties and broadcasts the
// delta.
func (e *Engine) SetMemberProperties(lobbyID uint32, username string, delta props.Properties) error {
	l, err := e.Lobby(lobbyID)
	if err != nil {
		return err
	}

	changed, err := l.setMemberProperties(username, delta)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	l.broadcast(propertiesNotice(NoticeMemberProperties, username, changed))
	e.bus.Publish(events.Event{Kind: events.LobbyMemberPropertyChanged, Payload: l})
	return nil
}

// JoinTeam moves the member onto the named team, enforcing its capacity.
func (e *Engine) JoinTeam(lobbyID uint32, username, team string) error {
	l, err := e.Lobby(lobbyID)
	if err != nil {
		return err
	}
	if err := l.joinTeam(username, team); err != nil {
		return err
	}
	l.broadcast(propertiesNotice(NoticeMemberProperties, username, props.Properties{"team": team}))
	return nil
}

// SetReady flags the member's readiness. All-ready is re-evaluated after
// every change.
func (e *Engine) SetReady(lobbyID uint32, username string, ready bool) error {
	l, err := e.Lobby(lobbyID)
	if err != nil {
		return err
	}
	allReady, err := l.setReady(username, ready)
	if err != nil {
		return err
	}
	l.broadcast(propertiesNotice(NoticeMemberProperties, username,
		props.Properties{"ready": strconv.FormatBool(ready)}))
	if allReady {
		e.logger.Infof("[LOBBY] lobby %d is all-ready", l.id)
	}
	return nil
}

// StartGame validates the start preconditions and, if they hold, moves the
// lobby to GameInProgress and kicks off room provisioning. Only the
// game-master may start the game.
func (e *Engine) StartGame(ctx context.Context, lobbyID uint32, username string) error {
	l, err := e.Lobby(lobbyID)
	if err != nil {
		return err
	}
	if err := l.checkStartable(username); err != nil {
		return err
	}

	m, err := l.member(username)
	if err != nil {
		return err
	}

	l.setState(StateGameInProgress)
	e.publishState(l)

	go e.provisionRoom(ctx, l, m.peer)
	return nil
}

// provisionRoom requests a spawn on behalf of the lobby, waits for the
// spawned room to finalize and register, and distributes individual access
// grants to every member. Any failure rolls the lobby back to Idle.
func (e *Engine) provisionRoom(ctx context.Context, l *Lobby, requester *peer.Peer) {
	ctx, cancel := context.WithTimeout(ctx, e.spawnTimeout)
	defer cancel()

	config := l.Config()
	task, err := e.spawners.RequestSpawn(requester, spawner.RoomOptions{
		Name:       config.Name,
		MaxPlayers: config.MaxMembers,
		Region:     config.Region,
		IsPublic:   false,
		Properties: l.Properties(),
	}, nil)
	if err != nil {
		e.failStart(l, err)
		return
	}

	finalization, err := task.WaitFinalized(ctx)
	if err != nil {
		e.abandonTask(requester, task)
		e.failStart(l, err)
		return
	}

	roomID, err := roomIDFromFinalization(finalization)
	if err != nil {
		e.failStart(l, err)
		return
	}

	for _, member := range l.membersSnapshot() {
		access, err := e.rooms.GetAccess(member.peer, roomID, "", props.Properties{
			"team":     member.Team(),
			"username": member.Username(),
		})
		if err != nil {
			e.logger.Warnf("[LOBBY] lobby %d: no access for member %q: %v", l.id, member.Username(), err)
			continue
		}
		if err := member.peer.Send(accessNotice(access)); err != nil {
			e.logger.Warnf("[LOBBY] lobby %d: failed to deliver access to %q: %v", l.id, member.Username(), err)
		}
	}
	e.logger.Infof("[LOBBY] lobby %d started game in room %d", l.id, roomID)
}

// abandonTask aborts a spawn task we gave up waiting on so the spawner's
// reserved process slot returns to the pool. The task may already be gone if
// the spawner itself aborted it.
func (e *Engine) abandonTask(requester *peer.Peer, task *spawner.Task) {
	err := e.spawners.AbortSpawn(requester, task.ID())
	if err != nil && !errors.Is(err, spawner.ErrTaskNotFound) {
		e.logger.Warnf("[LOBBY] failed to abort task %s: %v", task.ID(), err)
	}
}

func (e *Engine) failStart(l *Lobby, cause error) {
	e.logger.Warnf("[LOBBY] lobby %d failed to start game: %v", l.id, cause)
	l.setState(StateIdle)
	e.publishState(l)
	l.broadcast(reasonNotice(NoticeStartFailed, cause.Error()))
}

// HandleDisconnect unseats the departed peer from its lobby, if any.
func (e *Engine) HandleDisconnect(p *peer.Peer) {
	ext, ok := p.Extension(peer.ExtensionLobby)
	if !ok {
		return
	}
	seat := ext.(membership)
	if err := e.LeaveLobby(seat.lobbyID, seat.username); err != nil {
		e.logger.Warnf("[LOBBY] cleanup for peer %d failed: %v", p.ID(), err)
	}
}

// Lobby returns the lobby with the given id.
func (e *Engine) Lobby(lobbyID uint32) (*Lobby, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return l, nil
}

// Lobbies returns a snapshot of all live lobbies.
func (e *Engine) Lobbies() []*Lobby {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lobbies := make([]*Lobby, 0, len(e.lobbies))
	for _, l := range e.lobbies {
		lobbies = append(lobbies, l)
	}
	return lobbies
}

// MembershipOf resolves the lobby seat attached to a peer.
func (e *Engine) MembershipOf(p *peer.Peer) (uint32, string, error) {
	ext, ok := p.Extension(peer.ExtensionLobby)
	if !ok {
		return 0, "", ErrNotInLobby
	}
	seat := ext.(membership)
	return seat.lobbyID, seat.username, nil
}

func (e *Engine) destroyLobby(l *Lobby) {
	e.mu.Lock()
	delete(e.lobbies, l.id)
	e.mu.Unlock()

	e.logger.Infof("[LOBBY] destroyed lobby %d (%q)", l.id, l.config.Name)
	e.bus.Publish(events.Event{Kind: events.LobbyDestroyed, Payload: l})
}

func (e *Engine) publishState(l *Lobby) {
	l.broadcast(reasonNotice(NoticeStateChanged, l.State().String()))
	e.bus.Publish(events.Event{Kind: events.LobbyStateChanged, Payload: l})
}

func roomIDFromFinalization(finalization props.Properties) (uint32, error) {
	raw, ok := finalization["room_id"]
	if !ok {
		return 0, errors.New("finalization data carried no room id")
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errors.New("finalization data carried a malformed room id")
	}
	return uint32(id), nil
}

func memberNotice(op, username string) *wire.Message {
	var w wire.Writer
	w.WriteString(username)
	return wire.NewNotice(op, w.Bytes())
}

func reasonNotice(op, reason string) *wire.Message {
	var w wire.Writer
	w.WriteString(reason)
	return wire.NewNotice(op, w.Bytes())
}

func propertiesNotice(op, username string, delta props.Properties) *wire.Message {
	var w wire.Writer
	w.WriteString(username)
	w.WriteStringMap(delta)
	return wire.NewNotice(op, w.Bytes())
}

func accessNotice(access *room.Access) *wire.Message {
	var w wire.Writer
	w.WriteString(access.Token)
	w.WriteUint32(access.RoomID)
	w.WriteString(access.Address)
	w.WriteUint32(uint32(access.Port))
	w.WriteStringMap(access.Custom)
	return wire.NewNotice(NoticeGameAccess, w.Bytes())
}
