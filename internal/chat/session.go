// Package chat implements Session, the per-connection actor that joins a room,
// pumps inbound text into it and serializes outbound writes.
package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is a step of the session lifecycle.
type State int32

// Session states, in the order a session moves through them.
const (
	StatePreparing State = iota
	StateJoining
	StateActive
	StateLeaving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SessionOptions tunes a Session's connection handling. Zero durations
// disable the corresponding deadline.
type SessionOptions struct {
	MaxMessageSize int64
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	Logger         *zap.Logger
}

// Session binds one client connection to one Room.
//
// Any goroutine may call Deliver. Payloads are appended to a queue and
// drained by at most one writer goroutine at a time, strictly in order,
// because the connection does not allow concurrent writes.
type Session struct {
	name      string
	room      *Room
	handshake Handshake
	opts      SessionOptions
	log       *zap.Logger

	state atomic.Int32
	id    atomic.Uint64
	done  chan struct{}
	tasks sync.WaitGroup

	mu             sync.Mutex
	conn           Conn
	queue          [][]byte
	writing        bool
	closeRequested bool
	broken         bool
	connClosed     bool
	finished       bool
}

// NewSession creates a session for a member called name that will join room
// once handshake succeeds.
func NewSession(name string, room *Room, handshake Handshake, opts SessionOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Session{
		name:      name,
		room:      room,
		handshake: handshake,
		opts:      opts,
		log:       log.With(zap.String("room", room.Code()), zap.String("name", name)),
		done:      make(chan struct{}),
	}
}

// Name returns the member's display name.
func (s *Session) Name() string {
	return s.name
}

// ID returns the member ID assigned by the room, or 0 before the join.
func (s *Session) ID() uint64 {
	return s.id.Load()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run drives the session from handshake to close. It returns nil for every
// expected ending (failed join, peer close, reset, EOF, cancelled ctx) and an
// error when the handshake or the read loop fails unexpectedly. Membership is
// cleaned up before Run returns in every case, and Run does not return until
// the session's writer and keepalive goroutines have stopped.
func (s *Session) Run(ctx context.Context) error {
	defer s.finish()

	s.setState(StatePreparing)
	conn, err := s.handshake()
	if err != nil {
		s.room.abandon()
		return fmt.Errorf("handshake: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.configure(conn)

	s.setState(StateJoining)
	id, err := s.room.Join(s.name, s)
	if err != nil {
		s.log.Info("join refused", zap.Error(err))
		s.CloseWithMessage(encode(ErrorPayload{Error: ErrorRoomClosed}))
		return nil
	}
	s.id.Store(id)
	log := s.log.With(zap.Uint64("member", id))
	sessionsActive.Inc()
	s.setState(StateActive)
	log.Debug("member joined")

	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()
	s.startKeepalive(conn)

	readErr := s.readLoop(conn, id)

	s.setState(StateLeaving)
	s.room.Leave(id)
	sessionsActive.Dec()
	s.closeConn()

	if IsBenignDisconnect(readErr) {
		log.Debug("member left", zap.NamedError("reason", readErr))
		return nil
	}
	return fmt.Errorf("read: %w", readErr)
}

func (s *Session) configure(conn Conn) {
	if s.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	if s.opts.PingInterval <= 0 || s.opts.PongWait <= 0 {
		return
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
		s.log.Debug("set read deadline", zap.Error(err))
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})
}

func (s *Session) readLoop(conn Conn, id uint64) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.room.Send(id, string(data))
	}
}

// startKeepalive pings the peer every PingInterval until the session
// finishes. WriteControl may run concurrently with the writer goroutine.
func (s *Session) startKeepalive(conn Conn) {
	if s.opts.PingInterval <= 0 || s.opts.PongWait <= 0 {
		return
	}

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, s.deadline()); err != nil {
					return
				}
			}
		}
	}()
}

// finish stops accepting payloads and waits for the session's goroutines.
func (s *Session) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()

	close(s.done)
	s.tasks.Wait()
	s.setState(StateClosed)
}

// Deliver queues payload for writing. It never blocks on the network and is
// a no-op once a close was requested, the connection broke or the session
// finished.
func (s *Session) Deliver(payload []byte) {
	if payload == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeRequested || s.broken || s.finished {
		return
	}
	s.queue = append(s.queue, payload)
	s.startWriterLocked()
}

// CloseWithMessage queues payload as the last message and closes the
// connection once it has been written.
func (s *Session) CloseWithMessage(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeRequested || s.broken || s.finished {
		return
	}
	if payload != nil {
		s.queue = append(s.queue, payload)
	}
	s.closeRequested = true
	s.startWriterLocked()
}

// Close closes the underlying connection, which ends the read loop.
func (s *Session) Close() {
	s.closeConn()
}

func (s *Session) startWriterLocked() {
	if s.writing || s.conn == nil {
		return
	}
	s.writing = true
	s.tasks.Add(1)
	go s.writeLoop()
}

func (s *Session) writeLoop() {
	defer s.tasks.Done()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closing := s.closeRequested && !s.connClosed
			if !closing {
				s.writing = false
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()

			s.closeGracefully()

			s.mu.Lock()
			s.writing = false
			s.mu.Unlock()
			return
		}
		payload := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		conn := s.conn
		s.mu.Unlock()

		if err := s.write(conn, payload); err != nil {
			if !IsBenignDisconnect(err) {
				s.log.Debug("write failed", zap.Error(err))
			}
			s.mu.Lock()
			s.broken = true
			s.queue = nil
			s.writing = false
			s.mu.Unlock()
			s.closeConn()
			return
		}
	}
}

func (s *Session) write(conn Conn, payload []byte) error {
	if s.opts.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(s.deadline()); err != nil {
			return err
		}
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) closeGracefully() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, s.deadline()); err != nil && !IsBenignDisconnect(err) {
		s.log.Debug("write close frame", zap.Error(err))
	}
	s.closeConn()
}

func (s *Session) closeConn() {
	s.mu.Lock()
	if s.connClosed || s.conn == nil {
		s.mu.Unlock()
		return
	}
	s.connClosed = true
	conn := s.conn
	s.mu.Unlock()

	if err := conn.Close(); err != nil && !IsBenignDisconnect(err) {
		s.log.Debug("close connection", zap.Error(err))
	}
}

func (s *Session) deadline() time.Time {
	if s.opts.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.opts.WriteTimeout)
}
