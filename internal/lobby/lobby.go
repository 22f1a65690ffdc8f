// Package lobby implements the pre-game grouping state machine: members,
// teams, readiness, and the game-master role that gates starting a match.
package lobby

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wardenms/warden/internal/core/props"
	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
)

// State tracks a lobby through its lifecycle.
type State int

const (
	StatePreparation State = iota
	StateIdle
	StateGameInProgress
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StatePreparation:
		return "Preparation"
	case StateIdle:
		return "Idle"
	case StateGameInProgress:
		return "GameInProgress"
	case StateDestroyed:
		return "Destroyed"
	}
	return "Unknown"
}

var (
	ErrNotJoinable     = errors.New("lobby is not accepting members")
	ErrAlreadyMember   = errors.New("username is already a member of this lobby")
	ErrMemberNotFound  = errors.New("no member with that username")
	ErrTeamNotFound    = errors.New("no team with that name")
	ErrTeamFull        = errors.New("team full")
	ErrNotGameMaster   = errors.New("only the game-master may do that")
	ErrMembersNotReady = errors.New("not all members ready")
	ErrTeamsUnbalanced = errors.New("team minimum player requirements not met")
	ErrNotIdle         = errors.New("lobby is not in a startable state")
)

// Operation names for the notices lobbies push to their members.
const (
	NoticeMemberJoined     = "lobby.member_joined"
	NoticeMemberLeft       = "lobby.member_left"
	NoticeStateChanged     = "lobby.state_changed"
	NoticeMasterChanged    = "lobby.master_changed"
	NoticeProperties       = "lobby.properties_changed"
	NoticeMemberProperties = "lobby.member_properties_changed"
	NoticeGameAccess       = "lobby.game_access"
	NoticeStartFailed      = "lobby.start_failed"
)

// TeamOptions configures one team within a lobby.
type TeamOptions struct {
	Name       string
	MinPlayers int
	MaxPlayers int
	Properties props.Properties
}

// Config is the lobby shape produced by a factory.
type Config struct {
	Name       string
	MaxMembers int
	Region     string
	IsPublic   bool
	Teams      []TeamOptions
	Properties props.Properties
}

// Member is one player seated in a lobby. All fields are guarded by the
// owning lobby's mutex.
type Member struct {
	peer       *peer.Peer
	username   string
	properties props.Properties
	team       string
	ready      bool
	joinSeq    uint64
}

func (m *Member) Username() string { return m.username }
func (m *Member) Team() string     { return m.team }
func (m *Member) Peer() *peer.Peer { return m.peer }

// Lobby is one pre-game grouping. Mutating operations go through the engine,
// which is responsible for the surrounding bookkeeping and events.
type Lobby struct {
	id     uint32
	config Config

	mu         sync.Mutex
	state      State
	members    map[string]*Member
	master     *Member
	properties props.Properties
	joinSeq    uint64
}

func newLobby(id uint32, config Config) *Lobby {
	return &Lobby{
		id:         id,
		config:     config,
		state:      StatePreparation,
		members:    make(map[string]*Member),
		properties: config.Properties.Clone(),
	}
}

func (l *Lobby) ID() uint32     { return l.id }
func (l *Lobby) Config() Config { return l.config }

func (l *Lobby) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lobby) MemberCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.members)
}

// Master returns the username of the current game-master, or "" for an empty
// lobby.
func (l *Lobby) Master() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.master == nil {
		return ""
	}
	return l.master.username
}

// Properties returns a snapshot of the lobby-wide properties.
func (l *Lobby) Properties() props.Properties {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.properties.Clone()
}

func (l *Lobby) setState(to State) {
	l.mu.Lock()
	l.state = to
	l.mu.Unlock()
}

// addMember seats the player, making them game-master if the seat is the
// first one filled.
func (l *Lobby) addMember(p *peer.Peer, username string) (*Member, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateIdle {
		return nil, false, ErrNotJoinable
	}
	if _, ok := l.members[username]; ok {
		return nil, false, ErrAlreadyMember
	}
	if l.config.MaxMembers > 0 && len(l.members) >= l.config.MaxMembers {
		return nil, false, fmt.Errorf("lobby %d is full", l.id)
	}

	l.joinSeq++
	m := &Member{
		peer:       p,
		username:   username,
		properties: make(props.Properties),
		joinSeq:    l.joinSeq,
	}
	l.members[username] = m

	becameMaster := false
	if l.master == nil {
		l.master = m
		becameMaster = true
	}
	return m, becameMaster, nil
}

// removeMember unseats the player. When the game-master leaves, mastership
// passes to the longest-tenured remaining member (ties broken by
// lexicographically smallest username). Returns the new master's username
// (or "") and whether the lobby is now empty.
func (l *Lobby) removeMember(username string) (newMaster string, empty bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.members[username]
	if !ok {
		return "", false, ErrMemberNotFound
	}
	delete(l.members, username)

	if len(l.members) == 0 {
		l.master = nil
		l.state = StateDestroyed
		return "", true, nil
	}

	if l.master == m {
		l.master = l.successor()
		return l.master.username, false, nil
	}
	return "", false, nil
}

// successor implements the deterministic game-master succession policy.
func (l *Lobby) successor() *Member {
	var next *Member
	for _, m := range l.members {
		if next == nil ||
			m.joinSeq < next.joinSeq ||
			(m.joinSeq == next.joinSeq && m.username < next.username) {
			next = m
		}
	}
	return next
}

func (l *Lobby) member(username string) (*Member, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.members[username]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return m, nil
}

// joinTeam seats the member on the named team, enforcing the team's
// MaxPlayers bound.
func (l *Lobby) joinTeam(username, team string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateIdle {
		return ErrNotIdle
	}
	m, ok := l.members[username]
	if !ok {
		return ErrMemberNotFound
	}

	var opts *TeamOptions
	for i := range l.config.Teams {
		if l.config.Teams[i].Name == team {
			opts = &l.config.Teams[i]
			break
		}
	}
	if opts == nil {
		return ErrTeamNotFound
	}

	count := 0
	for _, other := range l.members {
		if other.team == team {
			count++
		}
	}
	if count >= opts.MaxPlayers {
		return ErrTeamFull
	}

	m.team = team
	return nil
}

// TeamCount returns the number of members currently on the named team.
func (l *Lobby) TeamCount(team string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, m := range l.members {
		if m.team == team {
			count++
		}
	}
	return count
}

// setReady flags the member and reports whether every member is now ready.
func (l *Lobby) setReady(username string, ready bool) (allReady bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.members[username]
	if !ok {
		return false, ErrMemberNotFound
	}
	m.ready = ready

	for _, other := range l.members {
		if !other.ready {
			return false, nil
		}
	}
	return true, nil
}

// checkStartable validates the preconditions for starting the game while the
// lobby is still Idle.
func (l *Lobby) checkStartable(username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.master == nil || l.master.username != username {
		return ErrNotGameMaster
	}
	if l.state != StateIdle {
		return ErrNotIdle
	}
	for _, m := range l.members {
		if !m.ready {
			return ErrMembersNotReady
		}
	}
	for _, team := range l.config.Teams {
		count := 0
		for _, m := range l.members {
			if m.team == team.Name {
				count++
			}
		}
		if count < team.MinPlayers {
			return fmt.Errorf("%w: team %q has %d of %d required players",
				ErrTeamsUnbalanced, team.Name, count, team.MinPlayers)
		}
	}
	return nil
}

// setProperties merges the delta into the lobby-wide properties, returning
// only the pairs that changed.
func (l *Lobby) setProperties(delta props.Properties) props.Properties {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.properties.Merge(delta)
}

// setMemberProperties merges the delta into the member's properties,
// returning only the pairs that changed.
func (l *Lobby) setMemberProperties(username string, delta props.Properties) (props.Properties, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.members[username]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return m.properties.Merge(delta), nil
}

// membersSnapshot returns the current members, for iteration without holding
// the lobby lock.
func (l *Lobby) membersSnapshot() []*Member {
	l.mu.Lock()
	defer l.mu.Unlock()
	members := make([]*Member, 0, len(l.members))
	for _, m := range l.members {
		members = append(members, m)
	}
	return members
}

// broadcast pushes a notice to every member. Delivery is best-effort.
func (l *Lobby) broadcast(m *wire.Message) {
	for _, member := range l.membersSnapshot() {
		_ = member.peer.Send(m)
	}
}
