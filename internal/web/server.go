// Package web serves the read-only dashboard API: JSON snapshots of the
// server's state and a websocket feed mirroring the event bus.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core/dispatch"
	"github.com/wardenms/warden/internal/core/events"
	"github.com/wardenms/warden/internal/lobby"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/room"
	"github.com/wardenms/warden/internal/spawner"
)

// Snapshot is the dashboard's view of the server, rebuilt whenever the event
// bus reports a change.
type Snapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Peers       int            `json:"peers"`
	Spawners    int            `json:"spawners"`
	Rooms       []RoomSummary  `json:"rooms"`
	Lobbies     []LobbySummary `json:"lobbies"`
}

type RoomSummary struct {
	ID            uint32 `json:"id"`
	Name          string `json:"name"`
	Region        string `json:"region"`
	OnlinePlayers int    `json:"online_players"`
	MaxPlayers    int    `json:"max_players"`
	IsPublic      bool   `json:"is_public"`
}

type LobbySummary struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	State   string `json:"state"`
	Master  string `json:"master"`
	Members int    `json:"members"`
}

type eventRecord struct {
	Kind string    `json:"kind"`
	Time time.Time `json:"time"`
}

// Server exposes the HTTP API and the websocket event feed.
type Server struct {
	Logger   *logrus.Logger
	Port     int
	Bus      *events.Bus
	Peers    *peer.Registry
	Spawners *spawner.Registry
	Rooms    *room.Broker
	Lobbies  *lobby.Engine

	upgrader websocket.Upgrader
	rebuild  *dispatch.Debounce
	started  time.Time

	mu       sync.RWMutex
	snapshot Snapshot
	feeds    map[*websocket.Conn]chan eventRecord
}

// Start begins serving the dashboard API until ctx is canceled.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) error {
	s.started = time.Now()
	s.feeds = make(map[*websocket.Conn]chan eventRecord)
	// Bursts of bus events (a lobby filling up, say) collapse into one
	// snapshot rebuild.
	s.rebuild = dispatch.NewDebounce(100 * time.Millisecond)
	s.rebuildSnapshot()

	s.Bus.SubscribeAll(func(e events.Event) {
		s.rebuild.Call(s.rebuildSnapshot)
		s.broadcastEvent(eventRecord{Kind: e.Kind.String(), Time: time.Now().UTC()})
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/events", s.handleEvents)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: mux,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Logger.Infof("[WEB] dashboard API listening on :%d", s.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Errorf("[WEB] server exited: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.rebuild.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return nil
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"peers":          s.Peers.Count(),
		"spawners":       s.Spawners.SpawnerCount(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()
	writeJSON(w, snapshot)
}

// handleEvents upgrades the connection and streams bus events until the
// client goes away or stops keeping up.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warnf("[WEB] websocket upgrade failed: %v", err)
		return
	}

	feed := make(chan eventRecord, 64)
	s.mu.Lock()
	s.feeds[conn] = feed
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.feeds, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for record := range feed {
		if err := conn.WriteJSON(record); err != nil {
			return
		}
	}
}

func (s *Server) broadcastEvent(record eventRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn, feed := range s.feeds {
		select {
		case feed <- record:
		default:
			// Slow consumer; let its write loop fail on the next event.
			s.Logger.Warnf("[WEB] dropping event for slow feed %s", conn.RemoteAddr())
		}
	}
}

func (s *Server) rebuildSnapshot() {
	snapshot := Snapshot{
		GeneratedAt: time.Now().UTC(),
		Peers:       s.Peers.Count(),
		Spawners:    s.Spawners.SpawnerCount(),
		Rooms:       make([]RoomSummary, 0),
		Lobbies:     make([]LobbySummary, 0),
	}

	for _, r := range s.Rooms.Rooms() {
		options := r.Options()
		snapshot.Rooms = append(snapshot.Rooms, RoomSummary{
			ID:            r.ID(),
			Name:          options.Name,
			Region:        options.Region,
			OnlinePlayers: r.OnlineCount(),
			MaxPlayers:    options.MaxPlayers,
			IsPublic:      options.IsPublic,
		})
	}

	for _, l := range s.Lobbies.Lobbies() {
		config := l.Config()
		snapshot.Lobbies = append(snapshot.Lobbies, LobbySummary{
			ID:      l.ID(),
			Name:    config.Name,
			State:   l.State().String(),
			Master:  l.Master(),
			Members: l.MemberCount(),
		})
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
