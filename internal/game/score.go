/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import "fmt"

const (
	SideVillagers = "villagers"
	SideImpostors = "impostors"
)

// RoundFinished is published once per scored round.
type RoundFinished struct {
	Code        string       `json:"code"`
	Round       int          `json:"round"`
	Word        string       `json:"word"`
	Impostors   []string     `json:"impostors"`
	Outcome     Outcome      `json:"outcome"`
	WinningSide string       `json:"winningSide"`
	Scores      []ScoreEntry `json:"scores"`
}

// Reveal shows the whole room who the impostors were and what the word was.
func (m *Manager) Reveal(host PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.hostRoom(host)
	if err != nil {
		return err
	}
	if r.round == nil {
		return fmt.Errorf("%w: no round to reveal", ErrInvalidState)
	}

	ids, names := impostorsOf(r.round)

	m.broadcast(r, RevealMessage{
		Type:          "revealResult",
		ImpostorNames: names,
		ImpostorIDs:   ids,
		Word:          r.round.Word,
	})

	return nil
}

// FinalizeRound scores the current round from its closed vote. The vote
// result is consumed, so a round can only be scored once.
func (m *Manager) FinalizeRound(host PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.hostRoom(host)
	if err != nil {
		return err
	}
	if r.round == nil {
		return fmt.Errorf("%w: no round to score", ErrInvalidState)
	}

	res := r.result
	if res == nil || res.Round != r.round.Number {
		return fmt.Errorf("%w: close a vote before scoring the round", ErrInvalidState)
	}
	r.result = nil

	villagersWin := res.Outcome == OutcomeWinner && r.round.Impostors[res.Winners[0]]

	for _, id := range r.round.Players {
		if !r.round.has(id) {
			continue
		}
		if r.round.Impostors[id] != villagersWin {
			r.scores[id]++
		}
	}

	side := SideImpostors
	if villagersWin {
		side = SideVillagers
	}

	m.log.Info().Str("room", r.Code).Int("round", r.round.Number).Str("winner", side).Msg("round scored")

	scores := r.scoreboard()
	m.broadcast(r, ScoreUpdatedMessage{
		Type:         "scoreUpdated",
		Scores:       scores,
		VillagersWin: villagersWin,
		WinningSide:  side,
	})
	m.sync(r)

	_, names := impostorsOf(r.round)
	m.publish("round.finished", RoundFinished{
		Code:        r.Code,
		Round:       r.round.Number,
		Word:        r.round.Word,
		Impostors:   names,
		Outcome:     res.Outcome,
		WinningSide: side,
		Scores:      scores,
	})

	return nil
}

// impostorsOf lists impostors in deal order, using the names they had when
// the round started.
func impostorsOf(rd *Round) ([]PlayerID, []string) {
	ids := make([]PlayerID, 0, len(rd.Impostors))
	names := make([]string, 0, len(rd.Impostors))

	for _, id := range rd.Players {
		if rd.Impostors[id] {
			ids = append(ids, id)
			names = append(names, rd.Names[id])
		}
	}

	return ids, names
}
