// Package chat implements the room and session core of the rtchat relay.
//
// A Manager owns the set of live rooms keyed by their four-letter code. A Room
// tracks its members through weak references and fans events out to them. A
// Session owns one WebSocket connection, forwards inbound text to its room and
// serializes every outbound payload through a single writer goroutine.
package chat
