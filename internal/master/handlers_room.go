package master

import (
	"context"

	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/room"
)

func (s *Server) handleRegisterRoom(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	r := wire.NewReader(m.Payload)
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	address, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	port, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	maxPlayers, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	password, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	isPublic, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	region, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	properties, err := r.ReadStringMap()
	if err != nil {
		return nil, err
	}
	if address == "" {
		address = s.BroadcastAddress
	}

	registered, err := s.Rooms.RegisterRoom(p, room.Options{
		Name:       name,
		Address:    address,
		Port:       int(port),
		MaxPlayers: int(maxPlayers),
		Password:   password,
		IsPublic:   isPublic,
		Region:     region,
		Properties: properties,
	})
	if err != nil {
		return nil, wrapError(err)
	}

	var w wire.Writer
	w.WriteUint32(registered.ID())
	return w.Bytes(), nil
}

func (s *Server) handleDestroyRoom(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	roomID, err := wire.NewReader(m.Payload).ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := s.Rooms.DestroyRoom(p, roomID); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleGetRoomAccess(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	r := wire.NewReader(m.Payload)
	roomID, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	password, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	custom, err := r.ReadStringMap()
	if err != nil {
		return nil, err
	}

	access, err := s.Rooms.GetAccess(p, roomID, password, custom)
	if err != nil {
		return nil, wrapError(err)
	}
	return encodeAccess(access), nil
}

func (s *Server) handleProvideAccessCheck(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	r := wire.NewReader(m.Payload)
	roomID, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	peerID, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	token, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	custom, err := r.ReadStringMap()
	if err != nil {
		return nil, err
	}

	if err := s.Rooms.ProvideAccessCheck(p, roomID, peerID, token, custom); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (s *Server) handleValidateAccess(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	token, err := wire.NewReader(m.Payload).ReadString()
	if err != nil {
		return nil, err
	}

	access, err := s.Rooms.ValidateAccess(p, token)
	if err != nil {
		return nil, wrapError(err)
	}
	return encodeAccess(access), nil
}

func (s *Server) handlePlayerLeft(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	r := wire.NewReader(m.Payload)
	roomID, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	peerID, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	if err := s.Rooms.PlayerLeft(roomID, peerID); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func encodeAccess(access *room.Access) []byte {
	var w wire.Writer
	w.WriteString(access.Token)
	w.WriteUint32(access.RoomID)
	w.WriteUint64(access.PeerID)
	w.WriteString(access.Address)
	w.WriteUint32(uint32(access.Port))
	w.WriteStringMap(access.Custom)
	return w.Bytes()
}
