// Package testhelpers provides common utilities for testing the rtchat server
// over real WebSocket connections.
//
// The helpers dial create and join routes, decode the server's JSON payloads,
// and assert HTTP responses so the server tests stay short.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the Origin header sent by Dial. Test servers allow it.
const TestOrigin = "http://localhost:8080"

const readTimeout = 2 * time.Second

// InitialState mirrors the first payload a member receives after joining.
type InitialState struct {
	MemberID    uint64            `json:"memberId"`
	MemberNames map[uint64]string `json:"memberNames"`
	RoomCode    string            `json:"roomCode"`
}

// Event mirrors a room event payload.
type Event struct {
	Action   string  `json:"action"`
	MemberID uint64  `json:"memberId"`
	Name     string  `json:"name,omitempty"`
	Text     *string `json:"text,omitempty"`
}

// WebSocketURL converts an httptest server URL into a ws:// URL for path,
// with name set as the query parameter when non-empty.
func WebSocketURL(serverURL, path, name string) string {
	u := "ws" + strings.TrimPrefix(serverURL, "http") + path
	if name != "" {
		u += "?name=" + url.QueryEscape(name)
	}
	return u
}

// CreateURL returns the WebSocket URL that creates a room as name.
func CreateURL(serverURL, name string) string {
	return WebSocketURL(serverURL, "/create", name)
}

// JoinURL returns the WebSocket URL that joins room code as name.
func JoinURL(serverURL, code, name string) string {
	return WebSocketURL(serverURL, "/join/"+url.PathEscape(code), name)
}

// Dial opens a WebSocket connection with the test origin. The response is
// returned so failed handshakes can be inspected; its body is closed.
func Dial(url string) (*websocket.Conn, *http.Response, error) {
	return DialWithOrigin(url, TestOrigin)
}

// DialWithOrigin is Dial with an explicit Origin header. An empty origin
// sends none.
func DialWithOrigin(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustDial dials url and fails the test on error. The connection is closed
// during cleanup.
func MustDial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := Dial(url)
	require.NoError(t, err, "dial %s", url)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadState reads the initial state payload.
func ReadState(t *testing.T, conn *websocket.Conn) InitialState {
	t.Helper()
	var state InitialState
	readJSON(t, conn, &state)
	return state
}

// ReadEvent reads one room event.
func ReadEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	var ev Event
	readJSON(t, conn, &ev)
	return ev
}

// ReadRaw reads one text frame.
func ReadRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	return data
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(ReadRaw(t, conn), v))
}

// ExpectNoMessage fails if conn receives a frame within timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected message: %s", data)
	}
	if ne, ok := err.(interface{ Timeout() bool }); !ok || !ne.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

// ExpectClosed reads until conn fails and returns the close error, if the
// peer sent one.
func ExpectClosed(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if ce, ok := err.(*websocket.CloseError); ok {
			return ce
		}
		return nil
	}
}

// Leave sends a normal close frame and closes conn.
func Leave(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// AssertStatusCode checks that resp carries the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	require.NotNil(t, resp, "expected an HTTP response")
	require.Equal(t, expected, resp.StatusCode)
}

// MakeRequest executes a plain HTTP request with a 5-second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// Text returns a pointer to s for comparing events.
func Text(s string) *string {
	return &s
}
