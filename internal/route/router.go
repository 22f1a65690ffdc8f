// Package route maps opcode-addressed messages to handler functions and
// converts handler results into wire responses.
package route

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
)

// Handler processes one message from a peer and returns the response payload.
// For notices the returned payload is discarded.
type Handler func(ctx context.Context, p *peer.Peer, m *wire.Message) ([]byte, error)

// Error carries the wire status a failed handler should respond with.
// Handlers wrap module errors with the helpers below; a bare error defaults
// to StatusFailed.
type Error struct {
	Status wire.Status
	Err    error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func Failed(err error) error       { return &Error{Status: wire.StatusFailed, Err: err} }
func Unauthorized(err error) error { return &Error{Status: wire.StatusUnauthorized, Err: err} }
func NotFound(err error) error     { return &Error{Status: wire.StatusNotFound, Err: err} }

type entry struct {
	name    string
	handler Handler
}

// Router dispatches decoded messages to the handler registered for their
// operation. All registration happens during startup; Dispatch is called
// concurrently from every peer's read loop.
type Router struct {
	logger *logrus.Logger

	mu       sync.RWMutex
	handlers map[uint32]entry
}

func NewRouter(logger *logrus.Logger) *Router {
	return &Router{
		logger:   logger,
		handlers: make(map[uint32]entry),
	}
}

// Handle registers the handler for the named operation.
func (r *Router) Handle(op string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[wire.Opcode(op)] = entry{name: op, handler: h}
}

// Dispatch routes one message. Requests always produce exactly one response:
// unknown operations answer NotHandled, handler errors answer with their
// mapped status, and a recovered panic answers StatusError so one bad
// handler cannot take down the peer's read loop.
func (r *Router) Dispatch(ctx context.Context, p *peer.Peer, m *wire.Message) {
	r.mu.RLock()
	e, ok := r.handlers[m.Op]
	r.mu.RUnlock()

	if !ok {
		if m.Kind == wire.KindRequest {
			_ = p.Send(m.Respond(wire.StatusNotHandled, nil))
		}
		r.logger.Debugf("[ROUTER] no handler for op %#x from peer %d", m.Op, p.ID())
		return
	}

	payload, err := r.invoke(ctx, e, p, m)

	if m.Kind != wire.KindRequest {
		if err != nil {
			r.logger.Warnf("[ROUTER] %s notice from peer %d failed: %v", e.name, p.ID(), err)
		}
		return
	}

	if err != nil {
		status := wire.StatusFailed
		var routeErr *Error
		if errors.As(err, &routeErr) {
			status = routeErr.Status
		}

		var w wire.Writer
		w.WriteString(clientMessage(err))
		_ = p.Send(m.Respond(status, w.Bytes()))
		return
	}
	_ = p.Send(m.Respond(wire.StatusSuccess, payload))
}

func (r *Router) invoke(ctx context.Context, e entry, p *peer.Peer, m *wire.Message) (payload []byte, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Errorf("[ROUTER] panic in %s handler for peer %d: %v\n%s",
				e.name, p.ID(), recovered, debug.Stack())
			err = &Error{Status: wire.StatusError, Err: errors.New("internal server error")}
		}
	}()
	return e.handler(ctx, p, m)
}

// clientMessage capitalizes the first word of an error for display in client
// UIs, leaving the rest of the message untouched. Casers are not safe for
// concurrent use, so one is built per call.
func clientMessage(err error) string {
	caser := cases.Title(language.English)
	msg := err.Error()
	if i := strings.IndexRune(msg, ' '); i > 0 {
		return caser.String(msg[:i]) + msg[i:]
	}
	return caser.String(msg)
}
