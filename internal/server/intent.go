// Package server turns an incoming HTTP request into a create or join intent
// before any room or session is touched.
package server

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Tyrowin/rtchat/internal/chat"
	"github.com/gorilla/websocket"
)

type intentKind int

const (
	intentCreate intentKind = iota
	intentJoin
)

// intent is what a client asked for: create a room, or join the room
// identified by code, under a display name.
type intent struct {
	kind intentKind
	name string
	code string
}

// routeError is a terminal transport-level failure answered on the
// not-yet-upgraded connection.
type routeError struct {
	status  int
	message string
}

func (e *routeError) Error() string {
	return e.message
}

func (e *routeError) write(w http.ResponseWriter) {
	if e.status == http.StatusUpgradeRequired {
		w.Header().Set("Connection", "Upgrade")
		w.Header().Set("Upgrade", "websocket")
	}
	http.Error(w, e.message, e.status)
}

var (
	errUnsupportedMethod = &routeError{http.StatusBadRequest, "Bad request: only GET is supported."}
	errMissingName       = &routeError{http.StatusBadRequest, "Bad request: the name query parameter is required."}
	errNameTooLong       = &routeError{http.StatusBadRequest, "Bad request: name is too long."}
	errMissingCode       = &routeError{http.StatusBadRequest, "Bad request: a room code is required."}
	errUnknownRoute      = &routeError{http.StatusBadRequest, "Bad request: unknown route."}
	errUpgradeRequired   = &routeError{http.StatusUpgradeRequired, "Upgrade required: this endpoint only speaks WebSocket."}
	errRoomNotFound      = &routeError{http.StatusNotFound, "Not found: no room with that code."}
	errNoRoomCode        = &routeError{http.StatusServiceUnavailable, "Service unavailable: no room code available."}
	errShuttingDown      = &routeError{http.StatusServiceUnavailable, "Service unavailable: server is shutting down."}
)

// parseIntent validates the request for the given route. Checks run in a
// fixed order: method, name, room code shape, then the upgrade headers.
func parseIntent(r *http.Request, kind intentKind, maxNameLength int) (intent, *routeError) {
	if r.Method != http.MethodGet {
		return intent{}, errUnsupportedMethod
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		return intent{}, errMissingName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return intent{}, errNameTooLong
	}

	in := intent{kind: kind, name: name}

	if kind == intentJoin {
		raw := r.PathValue("code")
		if strings.TrimSpace(raw) == "" {
			return intent{}, errMissingCode
		}
		code, ok := chat.NormalizeCode(raw)
		if !ok {
			return intent{}, errRoomNotFound
		}
		in.code = code
	}

	if !websocket.IsWebSocketUpgrade(r) {
		return intent{}, errUpgradeRequired
	}

	return in, nil
}
