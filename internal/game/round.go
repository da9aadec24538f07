/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"fmt"
	"maps"
	"slices"
)

// StartGame deals a new round: one secret word for everybody except a
// uniformly chosen set of impostors.
func (m *Manager) StartGame(host PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.hostRoom(host)
	if err != nil {
		return err
	}

	// Members whose connection is known dead don't get dealt in.
	for _, id := range slices.Clone(r.members) {
		if !r.connected(id) {
			m.remove(r, id, "pruned at round start")
		}
	}
	if m.rooms[r.Code] != r {
		return fmt.Errorf("%w: room %q is gone", ErrNotFound, r.Code)
	}
	if !r.isHost(host) {
		return fmt.Errorf("%w: only the host can do that", ErrUnauthorized)
	}

	if len(r.members) < MinPlayers {
		return fmt.Errorf("%w: at least %d players are needed to start, have %d", ErrInvalidState, MinPlayers, len(r.members))
	}

	pool := r.settings.WordPool
	if len(pool) == 0 {
		pool = m.pool
	}
	word := pool[m.rng.IntN(len(pool))]

	players := slices.Clone(r.members)
	shuffled := slices.Clone(players)
	m.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	k := effectiveImpostors(r.settings.ImpostorCount, len(players))
	impostors := make(map[PlayerID]bool, k)
	for _, id := range shuffled[:k] {
		impostors[id] = true
	}

	number := 1
	if r.round != nil {
		number = r.round.Number + 1
	}

	m.cancelVote(r)

	r.round = &Round{
		Number:    number,
		Word:      word,
		Impostors: impostors,
		Players:   players,
		Names:     maps.Clone(r.names),
	}

	m.log.Info().
		Str("room", r.Code).
		Int("round", number).
		Int("players", len(players)).
		Int("impostors", k).
		Msg("round started")

	for _, id := range players {
		m.sendRole(r, id)
	}
	m.broadcast(r, RoundStartedMessage{Type: "roundStarted", RoundNumber: number})
	m.sync(r)

	return nil
}

// RequestRole resends the caller's role for the current round.
func (m *Manager) RequestRole(player PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.memberRoom(player)
	if err != nil {
		return err
	}
	if r.round == nil {
		return fmt.Errorf("%w: no round has started", ErrInvalidState)
	}

	m.sendRole(r, player)

	return nil
}

func (m *Manager) sendRole(r *Room, player PlayerID) {
	m.send(player, roleFor(r, player))
}

// roleFor builds the role payload for one player. Players who joined after
// the round was dealt only learn that they are spectating.
func roleFor(r *Room, player PlayerID) RoleMessage {
	msg := RoleMessage{
		Type:        "role",
		RoundNumber: r.round.Number,
		HostName:    r.hostName(),
	}

	switch {
	case !r.round.has(player):
		msg.Spectating = true
	case r.round.Impostors[player]:
		msg.Word = ImpostorRole
	default:
		msg.Word = r.round.Word
	}

	return msg
}
