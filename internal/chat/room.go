// Package chat tracks room membership and fans room events out to members.
package chat

import (
	"maps"
	"sync"
	"weak"
)

// Room is a broadcast group identified by a code. Members are held through
// weak pointers: a room never keeps a session alive, and broadcasts skip
// members that can no longer be resolved.
type Room struct {
	code    string
	onEmpty func(*Room)

	mu      sync.Mutex
	dead    bool
	nextID  uint64
	members map[uint64]weak.Pointer[Session]
	names   map[uint64]string
}

func newRoom(code string, onEmpty func(*Room)) *Room {
	return &Room{
		code:    code,
		onEmpty: onEmpty,
		nextID:  1,
		members: make(map[uint64]weak.Pointer[Session]),
		names:   make(map[uint64]string),
	}
}

// Code returns the room's code.
func (r *Room) Code() string {
	return r.code
}

// Snapshot returns a copy of the current member names keyed by member ID.
func (r *Room) Snapshot() map[uint64]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.names)
}

// Len returns the number of current members.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Join adds s to the room under the next member ID and returns that ID. The
// joiner's initial state is queued before the lock is released so that it
// precedes every room event the member receives. The other members are then
// told about the join; the joiner itself is not. Join fails with ErrRoomDead
// once the room has closed, without touching membership.
func (r *Room) Join(name string, s *Session) (uint64, error) {
	r.mu.Lock()
	if r.dead {
		r.mu.Unlock()
		joinsRejected.Inc()
		return 0, ErrRoomDead
	}

	id := r.nextID
	r.nextID++
	r.members[id] = weak.Make(s)
	r.names[id] = name

	s.Deliver(encode(InitialState{
		MemberID:    id,
		MemberNames: maps.Clone(r.names),
		RoomCode:    r.code,
	}))
	r.mu.Unlock()

	r.broadcast(Event{Action: ActionJoined, MemberID: id, Name: name}, id)
	return id, nil
}

// Send broadcasts text from member id to every member, the sender included.
func (r *Room) Send(id uint64, text string) {
	r.broadcast(Event{Action: ActionSent, MemberID: id, Text: &text}, 0)
}

// Leave removes member id. If that empties the room, the room is marked dead
// and the teardown callback runs instead of a broadcast. Unknown IDs are
// ignored.
func (r *Room) Leave(id uint64) {
	r.mu.Lock()
	if _, ok := r.members[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.members, id)
	delete(r.names, id)
	empty := len(r.members) == 0
	if empty {
		r.dead = true
	}
	r.mu.Unlock()

	if empty {
		r.onEmpty(r)
		return
	}
	r.broadcast(Event{Action: ActionLeft, MemberID: id}, 0)
}

// abandon closes a room nobody ever joined. It is used when the creator's
// handshake fails so the code does not stay registered forever.
func (r *Room) abandon() {
	r.mu.Lock()
	if r.dead || r.nextID != 1 {
		r.mu.Unlock()
		return
	}
	r.dead = true
	r.mu.Unlock()

	r.onEmpty(r)
}

// broadcast queues ev on every resolvable member except the one with ID
// exclude (0 excludes nobody). The lock covers enumeration and enqueueing
// only; Deliver never blocks.
func (r *Room) broadcast(ev Event, exclude uint64) {
	payload := encode(ev)
	eventsBroadcast.WithLabelValues(string(ev.Action)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, ref := range r.members {
		if id == exclude {
			continue
		}
		if s := ref.Value(); s != nil {
			s.Deliver(payload)
		}
	}
}
