/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	ImpostorRole = "IMPOSTOR"
	DefaultName  = "Player"

	MinPlayers = 3

	MinImpostors     = 1
	MaxImpostors     = 5
	DefaultImpostors = 1

	MinVoteSeconds     = 10
	MaxVoteSeconds     = 300
	DefaultVoteSeconds = 60

	maxNameLength = 20
)

// Settings are mutable only by the host.
type Settings struct {
	ImpostorCount int
	VoteSeconds   int
	WordPool      []string
}

func defaultSettings() Settings {
	return Settings{
		ImpostorCount: DefaultImpostors,
		VoteSeconds:   DefaultVoteSeconds,
	}
}

// Round is replaced wholesale at every round start.
type Round struct {
	Number    int
	Word      string
	Impostors map[PlayerID]bool
	Players   []PlayerID
	Names     map[PlayerID]string

	// left holds players dealt in who have since left the room. They stay in
	// Players so a reveal still names them, but they no longer take part.
	left map[PlayerID]bool
}

// has reports whether id was dealt into the round and is still part of it.
func (rd *Round) has(id PlayerID) bool {
	return slices.Contains(rd.Players, id) && !rd.left[id]
}

func (rd *Round) forget(id PlayerID) {
	if !slices.Contains(rd.Players, id) {
		return
	}
	if rd.left == nil {
		rd.left = make(map[PlayerID]bool)
	}
	rd.left[id] = true
}

// away tracks a member whose connection dropped during the reconnect grace.
type away struct {
	timer clockwork.Timer
}

// Room holds one game session. All fields are guarded by the Manager.
type Room struct {
	Code string

	members []PlayerID
	names   map[PlayerID]string
	scores  map[PlayerID]int
	hostID  PlayerID

	settings Settings
	round    *Round
	vote     *Vote
	result   *VoteResult

	away map[PlayerID]*away

	lastActive time.Time
}

func newRoom(code string, now time.Time) *Room {
	return &Room{
		Code:       code,
		names:      make(map[PlayerID]string),
		scores:     make(map[PlayerID]int),
		settings:   defaultSettings(),
		away:       make(map[PlayerID]*away),
		lastActive: now,
	}
}

func (r *Room) isMember(id PlayerID) bool {
	_, ok := r.names[id]
	return ok
}

func (r *Room) isHost(id PlayerID) bool {
	return id != "" && r.hostID == id
}

func (r *Room) connected(id PlayerID) bool {
	_, gone := r.away[id]
	return !gone
}

func (r *Room) addMember(id PlayerID, name string) {
	if r.isMember(id) {
		r.names[id] = cleanName(name)
		return
	}

	r.members = append(r.members, id)
	r.names[id] = cleanName(name)
	if _, ok := r.scores[id]; !ok {
		r.scores[id] = 0
	}
	if r.hostID == "" {
		r.hostID = id
	}
}

// removeMember drops id and promotes the earliest remaining member if id was
// the host. It reports whether the host changed.
func (r *Room) removeMember(id PlayerID) (hostChanged bool) {
	i := slices.Index(r.members, id)
	if i < 0 {
		return false
	}

	r.members = slices.Delete(r.members, i, i+1)
	delete(r.names, id)
	delete(r.scores, id)

	// Coming back under the same id makes a fresh member: a spectator until
	// the next round.
	if r.round != nil {
		r.round.forget(id)
	}
	if r.vote != nil {
		r.vote.forget(id)
	}

	if a, ok := r.away[id]; ok {
		a.timer.Stop()
		delete(r.away, id)
	}

	if r.hostID != id {
		return false
	}

	r.hostID = ""
	if len(r.members) > 0 {
		r.hostID = r.members[0]
	}

	return true
}

func (r *Room) hostName() string {
	return r.names[r.hostID]
}

func (r *Room) scoreboard() []ScoreEntry {
	out := make([]ScoreEntry, 0, len(r.members))
	for _, id := range r.members {
		out = append(out, ScoreEntry{ID: id, Name: r.names[id], Points: r.scores[id]})
	}
	return out
}

func (r *Room) info(id PlayerID) RoomInfoMessage {
	return RoomInfoMessage{
		Type:     "roomInfo",
		Code:     r.Code,
		IsHost:   r.isHost(id),
		HostName: r.hostName(),
	}
}

// summarize projects the room into the summary every client renders from.
func summarize(r *Room) RoomState {
	s := RoomState{
		Type:         "roomState",
		Code:         r.Code,
		HostID:       r.hostID,
		HostName:     r.hostName(),
		Players:      make([]PlayerState, 0, len(r.members)),
		Names:        make([]string, 0, len(r.members)),
		Scores:       r.scoreboard(),
		Count:        len(r.members),
		Impostors:    r.settings.ImpostorCount,
		VoteDuration: r.settings.VoteSeconds,
		PoolSize:     len(r.settings.WordPool),
		VoteActive:   r.vote != nil && r.vote.state == voteActive,
	}

	for _, id := range r.members {
		s.Players = append(s.Players, PlayerState{
			ID:        id,
			Name:      r.names[id],
			Points:    r.scores[id],
			IsHost:    r.isHost(id),
			Connected: r.connected(id),
		})
		s.Names = append(s.Names, r.names[id])
	}

	if r.round != nil {
		s.RoundNumber = r.round.Number
	}

	return s
}

func cleanName(name string) string {
	name = truncate(strings.Join(strings.Fields(name), " "), maxNameLength)
	if name == "" {
		return DefaultName
	}
	return name
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

// effectiveImpostors never lets every member be an impostor.
func effectiveImpostors(requested, members int) int {
	return clamp(requested, MinImpostors, min(MaxImpostors, members-1))
}
