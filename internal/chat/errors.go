// Package chat defines the sentinel errors and disconnect classification used
// by rooms and sessions.
package chat

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

var (
	// ErrRoomDead is returned by Room.Join once the room has lost its last
	// member. A dead room never accepts members again.
	ErrRoomDead = errors.New("chat: room is closed")

	// ErrCodeSpaceExhausted is returned by Manager.CreateRoom when no free room
	// code could be found.
	ErrCodeSpaceExhausted = errors.New("chat: no free room code available")
)

// IsBenignDisconnect reports whether err is an expected way for a read loop to
// end: the peer sent a close frame, the stream hit EOF, the connection was
// reset, the socket was closed locally, or the keepalive deadline passed.
func IsBenignDisconnect(err error) bool {
	if err == nil {
		return true
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	return isExpectedCloseError(err)
}

// isExpectedCloseError matches close errors that the net and websocket
// packages only expose as text.
func isExpectedCloseError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe")
}
