// Package server implements the HTTP and WebSocket front end of rtchat.
//
// The implementation is organized into specialized files for configuration,
// logging, request routing, origin checks, middleware, and the session
// tracker used during shutdown. Room and session semantics live in the chat
// package; this package only turns HTTP requests into sessions.
package server
