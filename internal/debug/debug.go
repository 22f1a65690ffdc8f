// Package debug contains optional development utilities behind config flags.
package debug

import (
	"fmt"
	"net/http"
	// Blank import attaches the pprof handlers to the default mux.
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core/wire"
)

// StartPprofServer exposes the standard pprof handlers on the given port.
func StartPprofServer(logger *logrus.Logger, port int) {
	go func() {
		logger.Infof("[DEBUG] pprof server listening on :%d", port)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), nil); err != nil {
			logger.Warnf("[DEBUG] pprof server exited: %v", err)
		}
	}()
}

// DumpMessage writes a full structural dump of a decoded message for protocol
// debugging. Gated behind the message_logging_enabled config flag.
func DumpMessage(logger *logrus.Logger, direction string, peerID uint64, m *wire.Message) {
	logger.Debugf("[DEBUG] %s peer %d:\n%s", direction, peerID, spew.Sdump(m))
}
