package master

import (
	"context"
	"time"

	"github.com/wardenms/warden/internal/analytics"
	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
)

func (s *Server) handleFindGames(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	filter, err := wire.NewReader(m.Payload).ReadStringMap()
	if err != nil {
		return nil, err
	}

	games := s.Matchmaker.FindGames(p, filter)

	var w wire.Writer
	w.WriteUint16(uint16(len(games)))
	for _, game := range games {
		w.WriteString(game.Source)
		w.WriteUint32(game.ID)
		w.WriteString(game.Name)
		w.WriteString(game.Region)
		w.WriteUint32(uint32(game.OnlinePlayers))
		w.WriteUint32(uint32(game.MaxPlayers))
		w.WriteBool(game.PasswordProtected)
		w.WriteStringMap(game.Properties)
	}
	return w.Bytes(), nil
}

func (s *Server) handleGetRegions(_ context.Context, _ *peer.Peer, _ *wire.Message) ([]byte, error) {
	regions, err := s.Matchmaker.GetRegions()
	if err != nil {
		return nil, wrapError(err)
	}

	var w wire.Writer
	w.WriteUint16(uint16(len(regions)))
	for _, region := range regions {
		w.WriteString(region)
	}
	return w.Bytes(), nil
}

// handleSaveEvent ingests one telemetry event. Sent as a notice; saving never
// blocks on storage.
func (s *Server) handleSaveEvent(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	r := wire.NewReader(m.Payload)
	key, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	category, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	payload, err := r.ReadStringMap()
	if err != nil {
		return nil, err
	}

	s.Analytics.Save(analytics.Event{
		Key:       key,
		Category:  category,
		UserID:    s.eventSource(p),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	return nil, nil
}

// handleSetDashboardSource tags the peer with a source id that is attached to
// any telemetry it submits before authenticating.
func (s *Server) handleSetDashboardSource(_ context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	source, err := wire.NewReader(m.Payload).ReadString()
	if err != nil {
		return nil, err
	}
	p.SetExtension(peer.ExtensionDashboardSource, source)
	return nil, nil
}

// eventSource attributes a telemetry event to the authenticated account,
// falling back to the peer's dashboard source tag.
func (s *Server) eventSource(p *peer.Peer) string {
	if account, err := s.account(p); err == nil {
		return account.Username
	}
	if ext, ok := p.Extension(peer.ExtensionDashboardSource); ok {
		return ext.(string)
	}
	return ""
}
