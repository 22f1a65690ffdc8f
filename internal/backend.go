package internal

import (
	"github.com/wardenms/warden/internal/route"
)

// Backend is a set of message handlers served behind one frontend listener.
type Backend interface {
	// Identifier returns a uniquely identifying string for log lines.
	Identifier() string

	// RegisterRoutes attaches the backend's handlers to the router the
	// frontend dispatches decoded messages through.
	RegisterRoutes(r *route.Router)
}
