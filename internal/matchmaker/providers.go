package matchmaker

import (
	"github.com/wardenms/warden/internal/core/props"
	"github.com/wardenms/warden/internal/lobby"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/room"
)

// RoomProvider surfaces registered public rooms as browsable games.
type RoomProvider struct {
	Rooms *room.Broker
}

func (rp RoomProvider) PublicGames(_ *peer.Peer, filter props.Properties) []Game {
	games := make([]Game, 0)
	for _, r := range rp.Rooms.Rooms() {
		options := r.Options()
		if !options.IsPublic || !options.Properties.Matches(filter) {
			continue
		}
		games = append(games, Game{
			Source:            "room",
			ID:                r.ID(),
			Name:              options.Name,
			Region:            options.Region,
			OnlinePlayers:     r.OnlineCount(),
			MaxPlayers:        options.MaxPlayers,
			PasswordProtected: options.Password != "",
			Properties:        options.Properties.Clone(),
		})
	}
	return games
}

// LobbyProvider surfaces public lobbies that are still accepting members.
type LobbyProvider struct {
	Lobbies *lobby.Engine
}

func (lp LobbyProvider) PublicGames(_ *peer.Peer, filter props.Properties) []Game {
	games := make([]Game, 0)
	for _, l := range lp.Lobbies.Lobbies() {
		config := l.Config()
		properties := l.Properties()
		if !config.IsPublic || l.State() != lobby.StateIdle || !properties.Matches(filter) {
			continue
		}
		games = append(games, Game{
			Source:        "lobby",
			ID:            l.ID(),
			Name:          config.Name,
			Region:        config.Region,
			OnlinePlayers: l.MemberCount(),
			MaxPlayers:    config.MaxMembers,
			Properties:    properties,
		})
	}
	return games
}
