/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import "github.com/google/uuid"

// PlayerID is the stable identity of a device, carried across reconnects.
type PlayerID string

// ConnectionID identifies a single websocket connection.
type ConnectionID string

func NewPlayerID() PlayerID {
	return PlayerID(uuid.NewString())
}

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// ParsePlayerID accepts only ids minted by NewPlayerID.
func ParsePlayerID(s string) (PlayerID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}

	return PlayerID(id.String()), true
}
