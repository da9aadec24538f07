/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
)

type voteState int

const (
	voteActive voteState = iota + 1
	voteClosed
)

// Outcome classifies a closed vote.
type Outcome string

const (
	OutcomeWinner  Outcome = "winner"
	OutcomeTie     Outcome = "tie"
	OutcomeNoVotes Outcome = "no_votes"
)

// Vote is one Idle → Active → Closed cycle. Eligible is both the list of
// targets and the list of voters, snapshotted when the vote opens.
type Vote struct {
	seq      uint64
	state    voteState
	round    int
	endsAt   time.Time
	seconds  int
	eligible []PlayerID
	names    map[PlayerID]string
	ballots  map[PlayerID]PlayerID
	left     map[PlayerID]bool
	timer    clockwork.Timer
}

// isEligible reports whether id was snapshotted as a voter and has not left
// since.
func (v *Vote) isEligible(id PlayerID) bool {
	return slices.Contains(v.eligible, id) && !v.left[id]
}

// forget marks id as gone. An earlier ballot cast by id stays counted.
func (v *Vote) forget(id PlayerID) {
	if !slices.Contains(v.eligible, id) {
		return
	}
	if v.left == nil {
		v.left = make(map[PlayerID]bool)
	}
	v.left[id] = true
}

func (v *Vote) started() VoteStartedMessage {
	targets := make([]VoteTarget, 0, len(v.eligible))
	for _, id := range v.eligible {
		if v.isEligible(id) {
			targets = append(targets, VoteTarget{ID: id, Name: v.names[id]})
		}
	}

	return VoteStartedMessage{
		Type:    "voteStarted",
		EndsAt:  v.endsAt.UnixMilli(),
		Seconds: v.seconds,
		Players: targets,
	}
}

// Tally is the ballot count for one target.
type Tally struct {
	ID    PlayerID `json:"id"`
	Name  string   `json:"name"`
	Count int      `json:"count"`
}

// VoteResult is what a closed vote leaves behind for scoring.
type VoteResult struct {
	Round   int
	Results []Tally
	Winners []PlayerID
	Tied    []PlayerID
	Outcome Outcome
}

// StartVote opens a vote over the members present right now. A vote still
// open from earlier in the round is discarded.
func (m *Manager) StartVote(host PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.hostRoom(host)
	if err != nil {
		return err
	}
	if r.round == nil {
		return fmt.Errorf("%w: start a round before voting", ErrInvalidState)
	}

	m.cancelVote(r)

	eligible := make([]PlayerID, 0, len(r.members))
	for _, id := range r.members {
		if r.connected(id) {
			eligible = append(eligible, id)
		}
	}

	m.voteSeq++
	seq := m.voteSeq
	d := time.Duration(r.settings.VoteSeconds) * time.Second

	v := &Vote{
		seq:      seq,
		state:    voteActive,
		round:    r.round.Number,
		endsAt:   m.clock.Now().Add(d),
		seconds:  r.settings.VoteSeconds,
		eligible: eligible,
		names:    maps.Clone(r.names),
		ballots:  make(map[PlayerID]PlayerID),
	}
	v.timer = m.clock.AfterFunc(d, func() {
		m.expireVote(r, seq)
	})
	r.vote = v

	m.log.Info().Str("room", r.Code).Int("round", v.round).Int("seconds", v.seconds).Msg("vote started")

	m.broadcast(r, v.started())
	m.sync(r)

	return nil
}

// CastVote records the caller's ballot, replacing any earlier one.
func (m *Manager) CastVote(voter, target PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.memberRoom(voter)
	if err != nil {
		return err
	}

	v := r.vote
	if v == nil || v.state != voteActive {
		return fmt.Errorf("%w: no vote in progress", ErrInvalidState)
	}
	if !v.isEligible(voter) {
		return fmt.Errorf("%w: you joined after this vote opened", ErrInvalidState)
	}
	if !v.isEligible(target) {
		return fmt.Errorf("%w: that player cannot be voted for", ErrInvalidState)
	}

	v.ballots[voter] = target
	m.send(voter, VoteAckMessage{Type: "voteAck", TargetID: target})

	m.closeIfAllVoted(r)

	return nil
}

// EndVote closes the open vote on the host's request.
func (m *Manager) EndVote(host PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.hostRoom(host)
	if err != nil {
		return err
	}
	if r.vote == nil || r.vote.state != voteActive {
		return fmt.Errorf("%w: no vote in progress", ErrInvalidState)
	}

	m.closeVote(r, "host")

	return nil
}

func (m *Manager) expireVote(r *Room, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[r.Code] != r || r.vote == nil || r.vote.seq != seq {
		return
	}

	m.closeVote(r, "timeout")
}

func (m *Manager) closeIfAllVoted(r *Room) {
	v := r.vote
	if v == nil || v.state != voteActive {
		return
	}

	present := 0
	for _, id := range v.eligible {
		if !v.isEligible(id) {
			continue
		}
		if _, ok := v.ballots[id]; !ok {
			return
		}
		present++
	}

	if present > 0 {
		m.closeVote(r, "all voted")
	}
}

// closeVote performs the Active → Closed transition. Every path that ends a
// vote goes through here, so the timer is stopped exactly once.
func (m *Manager) closeVote(r *Room, reason string) {
	v := r.vote
	if v == nil || v.state != voteActive {
		return
	}

	v.state = voteClosed
	v.timer.Stop()

	res := tally(v.eligible, v.names, v.ballots, v.isEligible)
	res.Round = v.round
	r.result = &res

	m.log.Info().
		Str("room", r.Code).
		Int("round", v.round).
		Str("outcome", string(res.Outcome)).
		Str("reason", reason).
		Msg("vote closed")

	m.broadcast(r, VoteEndedMessage{
		Type:             "voteEnded",
		Results:          res.Results,
		WinningTargetIDs: res.Winners,
		TiedTargetIDs:    res.Tied,
		Outcome:          res.Outcome,
		Reason:           reason,
	})
	m.sync(r)
}

// cancelVote drops any vote and any unscored result without announcing one.
func (m *Manager) cancelVote(r *Room) {
	if v := r.vote; v != nil {
		v.state = voteClosed
		v.timer.Stop()
	}

	r.vote = nil
	r.result = nil
}

// tally counts ballots for eligible targets that are still present. A single
// strictly-highest non-zero count wins; anything else is inconclusive.
func tally(eligible []PlayerID, names map[PlayerID]string, ballots map[PlayerID]PlayerID, present func(PlayerID) bool) VoteResult {
	counts := make(map[PlayerID]int, len(eligible))
	for _, target := range ballots {
		if slices.Contains(eligible, target) && present(target) {
			counts[target]++
		}
	}

	res := VoteResult{
		Results: make([]Tally, 0, len(eligible)),
		Winners: []PlayerID{},
		Tied:    []PlayerID{},
	}

	best := 0
	var top []PlayerID

	for _, id := range eligible {
		if !present(id) {
			continue
		}

		n := counts[id]
		res.Results = append(res.Results, Tally{ID: id, Name: names[id], Count: n})

		switch {
		case n > best:
			best = n
			top = []PlayerID{id}
		case n == best && n > 0:
			top = append(top, id)
		}
	}

	switch {
	case best == 0:
		res.Outcome = OutcomeNoVotes
	case len(top) == 1:
		res.Outcome = OutcomeWinner
		res.Winners = top
	default:
		res.Outcome = OutcomeTie
		res.Tied = top
	}

	return res
}
