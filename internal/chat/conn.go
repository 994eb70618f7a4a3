// Package chat describes the connection boundary a Session drives.
package chat

import "time"

// Conn is the subset of *websocket.Conn a Session uses. Only one goroutine may
// call the write methods at a time; WriteControl and Close may be called
// concurrently with everything else.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Handshake completes the transport upgrade and returns the connection. It is
// called exactly once, at the start of Session.Run.
type Handshake func() (Conn, error)
