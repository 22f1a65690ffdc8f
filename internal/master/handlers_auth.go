package master

import (
	"context"
	"errors"

	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/route"
)

var errAuthUnavailable = errors.New("authentication is not available on this server")

func (s *Server) handleLogin(ctx context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	if s.Auth == nil {
		return nil, route.Failed(errAuthUnavailable)
	}

	r := wire.NewReader(m.Payload)
	username, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	password, err := r.ReadString()
	if err != nil {
		return nil, err
	}

	account, err := s.Auth.VerifyAccount(ctx, username, password)
	if err != nil {
		return nil, wrapError(err)
	}
	p.SetExtension(peer.ExtensionAccount, account)
	s.Logger.Infof("[%s] peer %d authenticated as %q", s.Name, p.ID(), account.Username)

	var w wire.Writer
	w.WriteUint64(account.ID)
	w.WriteString(account.Username)
	w.WriteBool(account.Admin)
	return w.Bytes(), nil
}

func (s *Server) handleRegister(ctx context.Context, p *peer.Peer, m *wire.Message) ([]byte, error) {
	if s.Auth == nil {
		return nil, route.Failed(errAuthUnavailable)
	}

	r := wire.NewReader(m.Payload)
	username, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	password, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	email, err := r.ReadString()
	if err != nil {
		return nil, err
	}

	account, err := s.Auth.CreateAccount(ctx, username, password, email)
	if err != nil {
		return nil, wrapError(err)
	}

	var w wire.Writer
	w.WriteUint64(account.ID)
	return w.Bytes(), nil
}
