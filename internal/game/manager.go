/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Notifier delivers a message to one connection. Implementations must not
// block: the Manager calls Notify while holding its lock.
type Notifier interface {
	Notify(conn ConnectionID, msg any)
}

// Publisher receives room events for external consumers.
type Publisher interface {
	Publish(subject string, v any) error
}

type discard struct{}

func (discard) Publish(string, any) error { return nil }

type Options struct {
	// PermissiveJoin creates a room when a player joins an unknown code.
	PermissiveJoin bool

	// ReconnectGrace keeps a disconnected player in their room for this long.
	// Zero removes them immediately.
	ReconnectGrace time.Duration

	// SessionTimeout closes rooms idle for longer than this. Zero disables it.
	SessionTimeout time.Duration

	// DefaultPool replaces DefaultWords when non-empty.
	DefaultPool []string

	Clock     clockwork.Clock
	Rand      *rand.Rand
	Logger    zerolog.Logger
	Publisher Publisher
}

// Manager owns every live room. Each exported method, and each timer
// callback, runs to completion under mu.
type Manager struct {
	mu sync.Mutex

	rooms map[string]*Room
	where map[PlayerID]string
	conns map[PlayerID][]ConnectionID

	notify    Notifier
	publisher Publisher
	clock     clockwork.Clock
	rng       *rand.Rand
	log       zerolog.Logger

	permissive bool
	grace      time.Duration
	timeout    time.Duration
	pool       []string

	voteSeq uint64
}

func NewManager(n Notifier, opts Options) *Manager {
	m := &Manager{
		rooms:      make(map[string]*Room),
		where:      make(map[PlayerID]string),
		conns:      make(map[PlayerID][]ConnectionID),
		notify:     n,
		publisher:  opts.Publisher,
		clock:      opts.Clock,
		rng:        opts.Rand,
		log:        opts.Logger,
		permissive: opts.PermissiveJoin,
		grace:      opts.ReconnectGrace,
		timeout:    opts.SessionTimeout,
		pool:       SanitizePool(opts.DefaultPool),
	}

	if m.publisher == nil {
		m.publisher = discard{}
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if len(m.pool) == 0 {
		m.pool = DefaultWords
	}

	return m
}

// Room returns the current summary of a live room.
func (m *Manager) Room(code string) (RoomState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[NormalizeCode(code)]
	if !ok {
		return RoomState{}, false
	}

	return summarize(r), true
}

// Rooms returns the number of live rooms.
func (m *Manager) Rooms() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.rooms)
}

// Connect adds conn to player's open connections. Every open connection of a
// player receives their messages. A player returning within the reconnect
// grace is resynced with their room.
func (m *Manager) Connect(player PlayerID, conn ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(m.conns[player], conn) {
		m.conns[player] = append(m.conns[player], conn)
	}
	m.notify.Notify(conn, SessionMessage{Type: "session", PlayerID: player})

	r := m.roomOf(player)
	if r == nil {
		return
	}

	if a, ok := r.away[player]; ok {
		a.timer.Stop()
		delete(r.away, player)

		m.log.Debug().Str("room", r.Code).Str("player", string(player)).Msg("player reconnected")
	}

	m.resync(r, player)
	m.sync(r)
}

// Disconnect handles a closed connection. The player only counts as gone
// once their last connection closes.
func (m *Manager) Disconnect(player PlayerID, conn ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns := m.conns[player]
	i := slices.Index(conns, conn)
	if i < 0 {
		return
	}
	conns = slices.Delete(conns, i, i+1)
	if len(conns) > 0 {
		m.conns[player] = conns
		return
	}
	delete(m.conns, player)

	r := m.roomOf(player)
	if r == nil {
		return
	}

	if m.grace <= 0 {
		m.remove(r, player, "disconnect")
		return
	}

	a := &away{}
	a.timer = m.clock.AfterFunc(m.grace, func() {
		m.expireAway(r, player, a)
	})
	r.away[player] = a

	m.sync(r)
}

func (m *Manager) expireAway(r *Room, player PlayerID, a *away) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[r.Code] != r || r.away[player] != a {
		return
	}

	m.remove(r, player, "reconnect grace expired")
}

// CreateRoom makes player the host of a fresh room and returns its code.
func (m *Manager) CreateRoom(player PlayerID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, err := m.newCode()
	if err != nil {
		return "", err
	}

	if old := m.roomOf(player); old != nil {
		m.remove(old, player, "left")
	}

	r := m.open(code)
	r.addMember(player, name)
	m.where[player] = code

	m.log.Info().Str("room", code).Str("player", string(player)).Msg("room created")

	m.send(player, RoomCreatedMessage{Type: "roomCreated", Code: code})
	m.send(player, r.info(player))
	m.sync(r)

	return code, nil
}

// JoinRoom adds player to the room with the given code. Unknown codes are
// rejected unless the manager is permissive, in which case the room is
// created with the joiner as host.
func (m *Manager) JoinRoom(player PlayerID, code, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code = NormalizeCode(code)

	r, ok := m.rooms[code]
	if !ok {
		if !m.permissive {
			return "", fmt.Errorf("%w: room %q does not exist", ErrNotFound, code)
		}
		if !ValidCode(code) {
			return "", fmt.Errorf("%w: %q is not a valid room code", ErrValidation, code)
		}
	}

	if old := m.roomOf(player); old != nil && old.Code != code {
		m.remove(old, player, "left")
	}

	if !ok {
		r = m.open(code)
		m.log.Info().Str("room", code).Str("player", string(player)).Msg("room created on join")
	}

	rejoin := r.isMember(player)
	r.addMember(player, name)
	r.lastActive = m.clock.Now()
	m.where[player] = code

	if !rejoin {
		m.log.Info().Str("room", code).Str("player", string(player)).Str("name", r.names[player]).Msg("player joined")
	}

	m.send(player, r.info(player))
	if r.round != nil {
		m.sendRole(r, player)
	}
	m.sync(r)

	return code, nil
}

// LeaveRoom removes player from their room.
func (m *Manager) LeaveRoom(player PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.memberRoom(player)
	if err != nil {
		return err
	}

	m.remove(r, player, "left")

	return nil
}

// KickPlayer lets the host remove another member.
func (m *Manager) KickPlayer(host, target PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.hostRoom(host)
	if err != nil {
		return err
	}

	if target == host {
		return fmt.Errorf("%w: the host cannot kick themself", ErrValidation)
	}
	if !r.isMember(target) {
		return fmt.Errorf("%w: player is not in this room", ErrNotFound)
	}

	m.send(target, KickedMessage{Type: "kicked", Message: "You have been removed by the host."})
	m.remove(r, target, "kicked")

	return nil
}

func (m *Manager) SetPool(host PlayerID, words []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.hostRoom(host)
	if err != nil {
		return err
	}

	r.settings.WordPool = SanitizePool(words)
	m.sync(r)

	return nil
}

func (m *Manager) SetImpostorCount(host PlayerID, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.hostRoom(host)
	if err != nil {
		return err
	}

	r.settings.ImpostorCount = clamp(n, MinImpostors, MaxImpostors)
	m.sync(r)

	return nil
}

func (m *Manager) SetVoteDuration(host PlayerID, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.hostRoom(host)
	if err != nil {
		return err
	}

	r.settings.VoteSeconds = clamp(seconds, MinVoteSeconds, MaxVoteSeconds)
	m.sync(r)

	return nil
}

// Run closes idle rooms until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	if m.timeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := m.clock.NewTicker(m.timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.ReapIdle()
		}
	}
}

// ReapIdle closes every room idle for longer than the session timeout and
// returns how many were closed.
func (m *Manager) ReapIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timeout <= 0 {
		return 0
	}

	cutoff := m.clock.Now().Add(-m.timeout)
	closed := 0

	for _, r := range m.rooms {
		if !r.lastActive.Before(cutoff) {
			continue
		}

		m.broadcast(r, RoomClosedMessage{Type: "roomClosed", Reason: "idle"})
		m.destroy(r, "idle")
		closed++
	}

	return closed
}

func (m *Manager) newCode() (string, error) {
	for range codeAttempts {
		code, err := GenerateCode()
		if err != nil {
			return "", fmt.Errorf("generating room code: %w", err)
		}
		if _, exists := m.rooms[code]; !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique room code after %d attempts", codeAttempts)
}

func (m *Manager) open(code string) *Room {
	r := newRoom(code, m.clock.Now())
	m.rooms[code] = r
	return r
}

func (m *Manager) roomOf(player PlayerID) *Room {
	code, ok := m.where[player]
	if !ok {
		return nil
	}
	return m.rooms[code]
}

func (m *Manager) memberRoom(player PlayerID) (*Room, error) {
	r := m.roomOf(player)
	if r == nil {
		return nil, fmt.Errorf("%w: you are not in a room", ErrNotFound)
	}

	r.lastActive = m.clock.Now()

	return r, nil
}

func (m *Manager) hostRoom(player PlayerID) (*Room, error) {
	r, err := m.memberRoom(player)
	if err != nil {
		return nil, err
	}
	if !r.isHost(player) {
		return nil, fmt.Errorf("%w: only the host can do that", ErrUnauthorized)
	}
	return r, nil
}

// remove takes player out of r, destroying r when it empties.
func (m *Manager) remove(r *Room, player PlayerID, reason string) {
	if !r.isMember(player) {
		return
	}

	hostChanged := r.removeMember(player)
	delete(m.where, player)

	m.log.Info().Str("room", r.Code).Str("player", string(player)).Str("reason", reason).Msg("player removed")

	if len(r.members) == 0 {
		m.destroy(r, "empty")
		return
	}

	if hostChanged {
		m.log.Info().Str("room", r.Code).Str("host", string(r.hostID)).Msg("host promoted")

		m.broadcast(r, HostChangedMessage{Type: "hostChanged", HostID: r.hostID, HostName: r.hostName()})
		for _, id := range r.members {
			m.send(id, r.info(id))
		}
	}

	m.sync(r)
	m.closeIfAllVoted(r)
}

// destroy forgets r and stops every timer it owns.
func (m *Manager) destroy(r *Room, reason string) {
	m.cancelVote(r)

	for id, a := range r.away {
		a.timer.Stop()
		delete(r.away, id)
	}

	for _, id := range r.members {
		if m.where[id] == r.Code {
			delete(m.where, id)
		}
	}

	delete(m.rooms, r.Code)

	m.log.Info().Str("room", r.Code).Str("reason", reason).Msg("room closed")
	m.publish("room.closed", map[string]any{"code": r.Code, "reason": reason})
}

func (m *Manager) resync(r *Room, player PlayerID) {
	m.send(player, r.info(player))

	if r.round != nil {
		m.sendRole(r, player)
	}

	if v := r.vote; v != nil && v.state == voteActive {
		m.send(player, v.started())
	}
}

func (m *Manager) send(player PlayerID, msg any) {
	for _, conn := range m.conns[player] {
		m.notify.Notify(conn, msg)
	}
}

func (m *Manager) broadcast(r *Room, msg any) {
	for _, id := range r.members {
		m.send(id, msg)
	}
}

func (m *Manager) sync(r *Room) {
	m.broadcast(r, summarize(r))
}

func (m *Manager) publish(subject string, v any) {
	if err := m.publisher.Publish(subject, v); err != nil {
		m.log.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
	}
}
