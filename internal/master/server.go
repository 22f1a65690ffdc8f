// Package master implements the message handlers for the orchestration core:
// authentication, spawner lifecycle, room access, lobbies, game discovery,
// and telemetry ingest.
package master

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/analytics"
	"github.com/wardenms/warden/internal/auth"
	"github.com/wardenms/warden/internal/core/data"
	"github.com/wardenms/warden/internal/lobby"
	"github.com/wardenms/warden/internal/matchmaker"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/room"
	"github.com/wardenms/warden/internal/route"
	"github.com/wardenms/warden/internal/spawner"
)

// Operation names for every request and notice the master server accepts.
const (
	OpLogin    = "auth.login"
	OpRegister = "auth.register"

	OpRegisterSpawner   = "spawner.register"
	OpRequestSpawn      = "spawner.request_spawn"
	OpProcessRegistered = "spawner.process_registered"
	OpCompleteSpawn     = "spawner.complete_spawn"
	OpAbortSpawn        = "spawner.abort_spawn"
	OpKillProcess       = "spawner.kill"

	OpRegisterRoom       = "room.register"
	OpDestroyRoom        = "room.destroy"
	OpGetRoomAccess      = "room.get_access"
	OpProvideAccessCheck = "room.provide_access_check"
	OpValidateAccess     = "room.validate_access"
	OpPlayerLeft         = "room.player_left"

	OpCreateLobby         = "lobby.create"
	OpJoinLobby           = "lobby.join"
	OpLeaveLobby          = "lobby.leave"
	OpSetLobbyProperties  = "lobby.set_properties"
	OpSetMemberProperties = "lobby.set_member_properties"
	OpJoinTeam            = "lobby.join_team"
	OpSetReady            = "lobby.set_ready"
	OpStartGame           = "lobby.start_game"

	OpFindGames  = "matchmaker.find_games"
	OpGetRegions = "matchmaker.get_regions"

	OpSaveEvent          = "analytics.save"
	OpSetDashboardSource = "analytics.set_source"
)

var (
	errNotAuthenticated = errors.New("authentication required")
	errNotAdministrator = errors.New("administrator privileges required")
)

// Server wires the orchestration modules to the wire protocol. It owns no
// state of its own; every handler delegates to the module registries.
type Server struct {
	Name string
	// Address handed out in access grants for rooms that register without one.
	BroadcastAddress string

	Logger     *logrus.Logger
	Auth       *auth.Service
	Spawners   *spawner.Registry
	Rooms      *room.Broker
	Lobbies    *lobby.Engine
	Matchmaker *matchmaker.Matchmaker
	Analytics  *analytics.Pipeline
}

func (s *Server) Identifier() string {
	return s.Name
}

// RegisterRoutes attaches every handler to the router.
func (s *Server) RegisterRoutes(r *route.Router) {
	r.Handle(OpLogin, s.handleLogin)
	r.Handle(OpRegister, s.handleRegister)

	r.Handle(OpRegisterSpawner, s.handleRegisterSpawner)
	r.Handle(OpRequestSpawn, s.handleRequestSpawn)
	r.Handle(OpProcessRegistered, s.handleProcessRegistered)
	r.Handle(OpCompleteSpawn, s.handleCompleteSpawn)
	r.Handle(OpAbortSpawn, s.handleAbortSpawn)
	r.Handle(OpKillProcess, s.handleKillProcess)

	r.Handle(OpRegisterRoom, s.handleRegisterRoom)
	r.Handle(OpDestroyRoom, s.handleDestroyRoom)
	r.Handle(OpGetRoomAccess, s.handleGetRoomAccess)
	r.Handle(OpProvideAccessCheck, s.handleProvideAccessCheck)
	r.Handle(OpValidateAccess, s.handleValidateAccess)
	r.Handle(OpPlayerLeft, s.handlePlayerLeft)

	r.Handle(OpCreateLobby, s.handleCreateLobby)
	r.Handle(OpJoinLobby, s.handleJoinLobby)
	r.Handle(OpLeaveLobby, s.handleLeaveLobby)
	r.Handle(OpSetLobbyProperties, s.handleSetLobbyProperties)
	r.Handle(OpSetMemberProperties, s.handleSetMemberProperties)
	r.Handle(OpJoinTeam, s.handleJoinTeam)
	r.Handle(OpSetReady, s.handleSetReady)
	r.Handle(OpStartGame, s.handleStartGame)

	r.Handle(OpFindGames, s.handleFindGames)
	r.Handle(OpGetRegions, s.handleGetRegions)

	r.Handle(OpSaveEvent, s.handleSaveEvent)
	r.Handle(OpSetDashboardSource, s.handleSetDashboardSource)
}

// account returns the authenticated account attached to the peer.
func (s *Server) account(p *peer.Peer) (*data.Account, error) {
	ext, ok := p.Extension(peer.ExtensionAccount)
	if !ok {
		return nil, route.Unauthorized(errNotAuthenticated)
	}
	return ext.(*data.Account), nil
}

// administrator returns the authenticated account attached to the peer,
// failing unless it carries the admin flag.
func (s *Server) administrator(p *peer.Peer) (*data.Account, error) {
	account, err := s.account(p)
	if err != nil {
		return nil, err
	}
	if !account.Admin {
		return nil, route.Unauthorized(errNotAdministrator)
	}
	return account, nil
}

// lobbySeat resolves the peer's lobby membership.
func (s *Server) lobbySeat(p *peer.Peer) (uint32, string, error) {
	lobbyID, username, err := s.Lobbies.MembershipOf(p)
	if err != nil {
		return 0, "", route.Failed(err)
	}
	return lobbyID, username, nil
}

// wrapError maps module sentinel errors onto wire statuses.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrAccountBanned),
		errors.Is(err, spawner.ErrNotTaskSpawner),
		errors.Is(err, spawner.ErrNotTaskRequester),
		errors.Is(err, room.ErrNotRoomOwner),
		errors.Is(err, room.ErrInvalidToken),
		errors.Is(err, lobby.ErrNotGameMaster):
		return route.Unauthorized(err)

	case errors.Is(err, spawner.ErrTaskNotFound),
		errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, lobby.ErrLobbyNotFound),
		errors.Is(err, lobby.ErrFactoryNotFound),
		errors.Is(err, lobby.ErrMemberNotFound),
		errors.Is(err, lobby.ErrTeamNotFound),
		errors.Is(err, matchmaker.ErrNoRegionsFound):
		return route.NotFound(err)
	}
	return route.Failed(err)
}
