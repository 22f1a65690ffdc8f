package master

import (
	"context"

	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
)

func (s *Server) handleCreateLobby(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	if _, err := s.account(p); err != nil {
		return nil, err
	}

	r := wire.NewReader(m.Payload)
	factoryID, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	options, err := r.ReadStringMap()
	if err != nil {
		return nil, err
	}

	l, err := s.Lobbies.CreateLobby(factoryID, options)
	if err != nil {
		return nil, wrapError(err)
	}

	var w wire.Writer
	w.WriteUint32(l.ID())
	return w.Bytes(), nil
}

func (s *Server) handleJoinLobby(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	account, err := s.account(p)
	if err != nil {
		return nil, err
	}
	lobbyID, err := wire.NewReader(m.Payload).ReadUint32()
	if err != nil {
		return nil, err
	}

	if _, err := s.Lobbies.JoinLobby(lobbyID, p, account.Username); err != nil {
		return nil, wrapError(err)
	}

	l, err := s.Lobbies.Lobby(lobbyID)
	if err != nil {
		return nil, wrapError(err)
	}
	var w wire.Writer
	w.WriteString(l.Master())
	w.WriteStringMap(l.Properties())
	return w.Bytes(), nil
}

func (s *Server) handleLeaveLobby(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	lobbyID, username, err := s.lobbySeat(p)
	if err != nil {
		return nil, err
	}
	if err := s.Lobbies.LeaveLobby(lobbyID, username); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleSetLobbyProperties(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	lobbyID, username, err := s.lobbySeat(p)
	if err != nil {
		return nil, err
	}
	delta, err := wire.NewReader(m.Payload).ReadStringMap()
	if err != nil {
		return nil, err
	}
	if err := s.Lobbies.SetLobbyProperties(lobbyID, username, delta); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleSetMemberProperties(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	lobbyID, username, err := s.lobbySeat(p)
	if err != nil {
		return nil, err
	}
	delta, err := wire.NewReader(m.Payload).ReadStringMap()
	if err != nil {
		return nil, err
	}
	if err := s.Lobbies.SetMemberProperties(lobbyID, username, delta); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleJoinTeam(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	lobbyID, username, err := s.lobbySeat(p)
	if err != nil {
		return nil, err
	}
	team, err := wire.NewReader(m.Payload).ReadString()
	if err != nil {
		return nil, err
	}
	if err := s.Lobbies.JoinTeam(lobbyID, username, team); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleSetReady(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	lobbyID, username, err := s.lobbySeat(p)
	if err != nil {
		return nil, err
	}
	ready, err := wire.NewReader(m.Payload).ReadBool()
	if err != nil {
		return nil, err
	}
	if err := s.Lobbies.SetReady(lobbyID, username, ready); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleStartGame(ctx context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	lobbyID, username, err := s.lobbySeat(p)
	if err != nil {
		return nil, err
	}
	if err := s.Lobbies.StartGame(ctx, lobbyID, username); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}
