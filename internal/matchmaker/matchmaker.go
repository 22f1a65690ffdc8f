// Package matchmaker aggregates public game listings from every registered
// provider so clients can browse joinable games and lobbies in one place.
package matchmaker

import (
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core/props"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/spawner"
)

// ErrNoRegionsFound is returned when no spawners are registered to serve any
// region.
var ErrNoRegionsFound = errors.New("no regions available")

// Game is one browsable entry in the merged listing, regardless of which
// provider produced it.
type Game struct {
	Source            string
	ID                uint32
	Name              string
	Region            string
	OnlinePlayers     int
	MaxPlayers        int
	PasswordProtected bool
	Properties        props.Properties
}

// GameProvider is the capability a module implements to surface its public
// games. The matchmaker never inspects the provider's concrete type.
type GameProvider interface {
	PublicGames(p *peer.Peer, filter props.Properties) []Game
}

// Matchmaker fans a discovery request out to every registered provider and
// merges the results.
type Matchmaker struct {
	logger   *logrus.Logger
	spawners *spawner.Registry

	mu        sync.RWMutex
	providers []GameProvider
}

func New(logger *logrus.Logger, spawners *spawner.Registry) *Matchmaker {
	return &Matchmaker{logger: logger, spawners: spawners}
}

// RegisterProvider adds a source of public games to future FindGames calls.
func (m *Matchmaker) RegisterProvider(provider GameProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, provider)
}

// FindGames queries every provider for public games matching the filter and
// merges the results into one list. There is no pagination; callers narrow
// the list with the property filter.
func (m *Matchmaker) FindGames(p *peer.Peer, filter props.Properties) []Game {
	m.mu.RLock()
	providers := make([]GameProvider, len(m.providers))
	copy(providers, m.providers)
	m.mu.RUnlock()

	games := make([]Game, 0)
	for _, provider := range providers {
		games = append(games, provider.PublicGames(p, filter)...)
	}
	return games
}

// GetRegions returns the distinct regions served by registered spawners,
// sorted for stable responses.
func (m *Matchmaker) GetRegions() ([]string, error) {
	regions := m.spawners.Regions()
	if len(regions) == 0 {
		return nil, ErrNoRegionsFound
	}
	sort.Strings(regions)
	return regions, nil
}
