// Package chat keeps the registry of live rooms and hands out collision-free
// room codes through the Manager type.
package chat

import (
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxCodeAttempts bounds the collision retries in CreateRoom. With 26^4 codes
// it is only reached when the code space is nearly full.
const maxCodeAttempts = 64

// Manager owns every live Room, keyed by code. All create, lookup and remove
// operations go through one mutex and never perform I/O while holding it.
type Manager struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	rng     *rand.Rand
	newCode func() string
	log     *zap.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for room lifecycle messages.
func WithLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithSeed seeds the manager's random source, making code sequences
// reproducible.
func WithSeed(seed1, seed2 uint64) ManagerOption {
	return func(m *Manager) {
		m.rng = rand.New(rand.NewPCG(seed1, seed2))
	}
}

// WithCodeSource replaces the random code generator. It is called under the
// manager lock, so it does not need to be safe for concurrent use.
func WithCodeSource(next func() string) ManagerOption {
	return func(m *Manager) {
		m.newCode = next
	}
}

// NewManager creates an empty Manager with a process-local random source.
func NewManager(opts ...ManagerOption) *Manager {
	now := uint64(time.Now().UnixNano())
	m := &Manager{
		rooms: make(map[string]*Room),
		rng:   rand.New(rand.NewPCG(now, now>>1|1)),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.newCode == nil {
		m.newCode = func() string { return randomCode(m.rng) }
	}
	return m
}

// CreateRoom registers a new, empty room under a code that is not currently
// live and returns both. The room removes itself from the manager when its
// last member leaves.
func (m *Manager) CreateRoom() (string, *Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for range maxCodeAttempts {
		code := m.newCode()
		if _, taken := m.rooms[code]; taken {
			continue
		}

		room := newRoom(code, m.onRoomEmpty)
		m.rooms[code] = room
		roomsActive.Inc()
		roomsCreated.Inc()
		m.log.Debug("room created", zap.String("room", code), zap.Int("rooms", len(m.rooms)))
		return code, room, nil
	}

	return "", nil, ErrCodeSpaceExhausted
}

// GetRoom returns the live room registered under code.
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[code]
	return room, ok
}

// Len returns the number of live rooms.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// onRoomEmpty is the teardown callback handed to every room. The code is only
// removed while it still maps to that room, so a late call can never evict a
// newer room that reused the code.
func (m *Manager) onRoomEmpty(room *Room) {
	m.mu.Lock()
	current, ok := m.rooms[room.Code()]
	if !ok || current != room {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, room.Code())
	remaining := len(m.rooms)
	m.mu.Unlock()

	roomsActive.Dec()
	m.log.Debug("room closed", zap.String("room", room.Code()), zap.Int("rooms", remaining))
}
