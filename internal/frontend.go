package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core"
	"github.com/wardenms/warden/internal/core/events"
	"github.com/wardenms/warden/internal/core/wire"
	wardendebug "github.com/wardenms/warden/internal/debug"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/route"
)

// frontend implements the concurrent peer connection logic.
//
// Data is read from any connected peers, decoded into messages, and passed to
// the router, abstracting the lower level connection details away from the
// Backends.
type frontend struct {
	Address string
	Backend Backend
	Config  *core.Config
	Logger  *logrus.Logger
	Peers   *peer.Registry
	Router  *route.Router
	Bus     *events.Bus
}

// Start opens a TCP socket for the server and registers the backend's routes.
// A blocking loop for accepting peer connections is spun off in its own
// goroutine and added to the WaitGroup. Context cancellation stops the server.
func (f *frontend) Start(ctx context.Context, wg *sync.WaitGroup) error {
	f.Backend.RegisterRoutes(f.Router)

	socket, err := f.createSocket()
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %w", f.Address, err)
	}

	wg.Add(1)
	go f.startBlockingLoop(ctx, socket, wg)

	return nil
}

func (f *frontend) createSocket() (*net.TCPListener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", f.Address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address: %w", err)
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %w", err)
	}

	return socket, nil
}

// startBlockingLoop implements a connection handling loop that's purely
// responsible for accepting new connections and spinning off goroutines to
// handle them.
func (f *frontend) startBlockingLoop(ctx context.Context, socket *net.TCPListener, wg *sync.WaitGroup) {
	defer wg.Done()

	f.Logger.Infof("[%s] waiting for connections on %v", f.Backend.Identifier(), f.Address)

	go func() {
		<-ctx.Done()
		_ = socket.Close()
	}()

	peerWg := &sync.WaitGroup{}
	for {
		connection, err := socket.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			f.Logger.Warnf("failed to accept connection: %v", err)
			continue
		}

		if f.Config.MaxConnections > 0 && f.Peers.Count() >= f.Config.MaxConnections {
			f.Logger.Warnf("[%s] rejecting connection from %s: at connection limit",
				f.Backend.Identifier(), connection.RemoteAddr())
			_ = connection.Close()
			continue
		}

		peerWg.Add(1)
		go f.acceptPeer(ctx, connection, peerWg)
	}

	f.Logger.Infof("[%s] shutting down (waiting for connections to close)", f.Backend.Identifier())
	peerWg.Wait()
	f.Logger.Infof("[%s] exited", f.Backend.Identifier())
}

// acceptPeer registers the connection with the peer registry and moves into
// the message processing loop.
func (f *frontend) acceptPeer(ctx context.Context, connection *net.TCPConn, wg *sync.WaitGroup) {
	defer wg.Done()

	p := f.Peers.Add(connection.RemoteAddr().String(), connection)
	f.Logger.Infof("[%s] accepted connection from %s (peer %d)",
		f.Backend.Identifier(), p.Addr(), p.ID())
	f.Bus.Publish(events.Event{Kind: events.PeerConnected, Payload: p})

	go func() {
		<-ctx.Done()
		_ = connection.Close()
	}()

	f.processMessages(ctx, p, connection)
}

// processMessages runs a blocking loop dedicated to reading messages sent by
// a peer, returning once the connection has closed.
func (f *frontend) processMessages(ctx context.Context, p *peer.Peer, connection *net.TCPConn) {
	defer f.closeConnectionAndRecover(p, connection)

	for {
		m, err := wire.Decode(connection)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			if ctx.Err() == nil {
				f.Logger.Warnf("[%s] read error from peer %d: %v", f.Backend.Identifier(), p.ID(), err)
			}
			break
		}

		if f.Config.Debugging.MessageLoggingEnabled {
			wardendebug.DumpMessage(f.Logger, "received from", p.ID(), m)
		}

		// Dispatching inline preserves per-peer message ordering.
		f.Router.Dispatch(ctx, p, m)
	}
}

// closeConnectionAndRecover is the failsafe that catches any panics,
// disconnects the peer, and removes them from the registry regardless of the
// state of the connection. Module cleanup runs through the registry's
// disconnect hooks.
func (f *frontend) closeConnectionAndRecover(p *peer.Peer, connection *net.TCPConn) {
	if err := recover(); err != nil {
		f.Logger.Errorf("error in communication with peer %d: error=%s, trace: %s",
			p.ID(), err, debug.Stack())
	}

	if err := connection.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		f.Logger.Warnf("failed to close connection for peer %d: %v", p.ID(), err)
	}

	f.Peers.Remove(p)
	f.Bus.Publish(events.Event{Kind: events.PeerDisconnected, Payload: p})

	f.Logger.Infof("[%s] disconnected peer %d (%s)", f.Backend.Identifier(), p.ID(), p.Addr())
}
