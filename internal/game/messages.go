/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

// Messages sent to clients. Every message carries its type so the
// transport can encode it as-is.

// SessionMessage tells a freshly connected client who it is.
type SessionMessage struct {
	Type     string   `json:"type"` // "session"
	PlayerID PlayerID `json:"playerId"`
}

// RoomCreatedMessage is sent only to the creator of a room.
type RoomCreatedMessage struct {
	Type string `json:"type"` // "roomCreated"
	Code string `json:"code"`
}

// RoomInfoMessage is personal: it carries the receiver's own host flag.
type RoomInfoMessage struct {
	Type     string `json:"type"` // "roomInfo"
	Code     string `json:"code"`
	IsHost   bool   `json:"isHost"`
	HostName string `json:"hostName"`
}

// PlayerState is one row of the room summary.
type PlayerState struct {
	ID        PlayerID `json:"id"`
	Name      string   `json:"name"`
	Points    int      `json:"points"`
	IsHost    bool     `json:"isHost"`
	Connected bool     `json:"connected"`
}

// ScoreEntry is one row of a scoreboard.
type ScoreEntry struct {
	ID     PlayerID `json:"id"`
	Name   string   `json:"name"`
	Points int      `json:"points"`
}

// RoomState is the room summary broadcast after every change.
type RoomState struct {
	Type         string        `json:"type"` // "roomState"
	Code         string        `json:"code"`
	HostID       PlayerID      `json:"hostId"`
	HostName     string        `json:"hostName"`
	Players      []PlayerState `json:"players"`
	Names        []string      `json:"names"`
	Scores       []ScoreEntry  `json:"scores"`
	Count        int           `json:"count"`
	Impostors    int           `json:"impostors"`
	VoteDuration int           `json:"voteDuration"`
	PoolSize     int           `json:"poolSize"`
	RoundNumber  int           `json:"roundNumber"`
	VoteActive   bool          `json:"voteActive"`
}

// HostChangedMessage announces a host promotion.
type HostChangedMessage struct {
	Type     string   `json:"type"` // "hostChanged"
	HostID   PlayerID `json:"hostId"`
	HostName string   `json:"hostName"`
}

// RoundStartedMessage is broadcast once per round; clients clear any
// displayed reveal when they see it.
type RoundStartedMessage struct {
	Type        string `json:"type"` // "roundStarted"
	RoundNumber int    `json:"roundNumber"`
}

// RoleMessage is sent to each player individually. Word holds either the
// secret word or ImpostorRole, never both.
type RoleMessage struct {
	Type        string `json:"type"` // "role"
	RoundNumber int    `json:"roundNumber"`
	Word        string `json:"word,omitempty"`
	Spectating  bool   `json:"spectating,omitempty"`
	HostName    string `json:"hostName"`
}

// VoteTarget is a player that can be voted for.
type VoteTarget struct {
	ID   PlayerID `json:"id"`
	Name string   `json:"name"`
}

// VoteStartedMessage opens a vote. EndsAt is in Unix milliseconds.
type VoteStartedMessage struct {
	Type    string       `json:"type"` // "voteStarted"
	EndsAt  int64        `json:"endsAt"`
	Seconds int          `json:"seconds"`
	Players []VoteTarget `json:"players"`
}

// VoteAckMessage confirms a recorded ballot to its voter.
type VoteAckMessage struct {
	Type     string   `json:"type"` // "voteAck"
	TargetID PlayerID `json:"targetId"`
}

// VoteEndedMessage carries the tally of a closed vote.
type VoteEndedMessage struct {
	Type             string     `json:"type"` // "voteEnded"
	Results          []Tally    `json:"results"`
	WinningTargetIDs []PlayerID `json:"winningTargetIds"`
	TiedTargetIDs    []PlayerID `json:"tiedTargetIds"`
	Outcome          Outcome    `json:"outcome"`
	Reason           string     `json:"reason"`
}

// RevealMessage discloses the impostors and the word to the whole room.
type RevealMessage struct {
	Type          string     `json:"type"` // "revealResult"
	ImpostorNames []string   `json:"impostorNames"`
	ImpostorIDs   []PlayerID `json:"impostorIds"`
	Word          string     `json:"word"`
}

// ScoreUpdatedMessage is broadcast after a round is scored.
type ScoreUpdatedMessage struct {
	Type         string       `json:"type"` // "scoreUpdated"
	Scores       []ScoreEntry `json:"scores"`
	VillagersWin bool         `json:"villagersWin"`
	WinningSide  string       `json:"winningSide"`
}

// KickedMessage is sent to a player removed by the host.
type KickedMessage struct {
	Type    string `json:"type"` // "kicked"
	Message string `json:"message"`
}

// RoomClosedMessage is sent to members of a room closed by the reaper.
type RoomClosedMessage struct {
	Type   string `json:"type"` // "roomClosed"
	Reason string `json:"reason"`
}

// ErrorMessage reports a rejected command to its sender only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorMessage classifies err for the client.
func NewErrorMessage(err error) ErrorMessage {
	return ErrorMessage{
		Type:    "error",
		Kind:    Kind(err),
		Message: err.Error(),
	}
}
