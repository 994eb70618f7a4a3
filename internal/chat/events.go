// Package chat defines the JSON payloads the server writes to clients.
package chat

import "encoding/json"

// Action names a room event.
type Action string

// Room event actions.
const (
	ActionJoined Action = "joined"
	ActionLeft   Action = "left"
	ActionSent   Action = "sent"
)

// Error codes carried by ErrorPayload.
const (
	ErrorRoomClosed = "room_closed"
)

// Event is broadcast by a Room to its members. Name is set only for joined
// events and Text only for sent events, where an empty message is still
// encoded as "text":"".
type Event struct {
	Action   Action  `json:"action"`
	MemberID uint64  `json:"memberId"`
	Name     string  `json:"name,omitempty"`
	Text     *string `json:"text,omitempty"`
}

// InitialState is sent once to a member right after it joins.
type InitialState struct {
	MemberID    uint64            `json:"memberId"`
	MemberNames map[uint64]string `json:"memberNames"`
	RoomCode    string            `json:"roomCode"`
}

// ErrorPayload is sent to a session that could not join before its
// connection is closed.
type ErrorPayload struct {
	Error string `json:"error"`
}

// encode marshals v. Every payload type here is plain data, so a failure is a
// programming error and yields nil, which Deliver ignores.
func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
