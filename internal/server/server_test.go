package server_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/rtchat/internal/chat"
	"github.com/Tyrowin/rtchat/internal/server"
	"github.com/Tyrowin/rtchat/internal/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sequence(codes ...string) func() string {
	i := 0
	return func() string {
		code := codes[min(i, len(codes)-1)]
		i++
		return code
	}
}

// newTestServer starts the full handler stack on an httptest server. Rooms
// get codes from codes when given.
func newTestServer(t *testing.T, codes ...string) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	cfg.PingInterval = 0

	var opts []chat.ManagerOption
	if len(codes) > 0 {
		opts = append(opts, chat.WithCodeSource(sequence(codes...)))
	}
	srv := server.New(cfg, zap.NewNop(), opts...)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		ts.Close()
	})
	return srv, ts
}

func TestServerEndToEnd(t *testing.T) {
	srv, ts := newTestServer(t, "WXYZ")

	alice := testhelpers.MustDial(t, testhelpers.CreateURL(ts.URL, "alice"))
	assert.Equal(t, testhelpers.InitialState{
		MemberID:    1,
		MemberNames: map[uint64]string{1: "alice"},
		RoomCode:    "WXYZ",
	}, testhelpers.ReadState(t, alice))
	assert.Equal(t, 1, srv.Rooms().Len())

	// Codes are case-insensitive on join.
	bob := testhelpers.MustDial(t, testhelpers.JoinURL(ts.URL, "wxyz", "bob"))
	assert.Equal(t, testhelpers.InitialState{
		MemberID:    2,
		MemberNames: map[uint64]string{1: "alice", 2: "bob"},
		RoomCode:    "WXYZ",
	}, testhelpers.ReadState(t, bob))
	assert.Equal(t, testhelpers.Event{Action: "joined", MemberID: 2, Name: "bob"}, testhelpers.ReadEvent(t, alice))

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte("hello")))
	want := testhelpers.Event{Action: "sent", MemberID: 2, Text: testhelpers.Text("hello")}
	assert.Equal(t, want, testhelpers.ReadEvent(t, alice))
	assert.Equal(t, want, testhelpers.ReadEvent(t, bob))

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, nil))
	empty := testhelpers.Event{Action: "sent", MemberID: 1, Text: testhelpers.Text("")}
	assert.Equal(t, empty, testhelpers.ReadEvent(t, alice))
	assert.Equal(t, empty, testhelpers.ReadEvent(t, bob))

	// Abrupt disconnect, no close frame.
	require.NoError(t, bob.Close())
	assert.Equal(t, testhelpers.Event{Action: "left", MemberID: 2}, testhelpers.ReadEvent(t, alice))

	require.NoError(t, testhelpers.Leave(alice))
	require.Eventually(t, func() bool {
		return srv.Rooms().Len() == 0 && srv.ActiveSessions() == 0
	}, 2*time.Second, 10*time.Millisecond)

	_, resp, err := testhelpers.Dial(testhelpers.JoinURL(ts.URL, "WXYZ", "carol"))
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)
}

func TestServerJoinedEventNotSentToJoiner(t *testing.T) {
	_, ts := newTestServer(t, "ABCD")

	alice := testhelpers.MustDial(t, testhelpers.CreateURL(ts.URL, "alice"))
	testhelpers.ReadState(t, alice)

	bob := testhelpers.MustDial(t, testhelpers.JoinURL(ts.URL, "ABCD", "bob"))
	testhelpers.ReadState(t, bob)
	testhelpers.ReadEvent(t, alice)

	testhelpers.ExpectNoMessage(t, bob, 100*time.Millisecond)
}

func TestServerRoomsAreIsolated(t *testing.T) {
	_, ts := newTestServer(t, "AAAA", "BBBB")

	first := testhelpers.MustDial(t, testhelpers.CreateURL(ts.URL, "first"))
	assert.Equal(t, "AAAA", testhelpers.ReadState(t, first).RoomCode)
	second := testhelpers.MustDial(t, testhelpers.CreateURL(ts.URL, "second"))
	assert.Equal(t, "BBBB", testhelpers.ReadState(t, second).RoomCode)

	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte("only here")))
	assert.Equal(t, "only here", *testhelpers.ReadEvent(t, first).Text)
	testhelpers.ExpectNoMessage(t, second, 100*time.Millisecond)
}

func TestServerRouting(t *testing.T) {
	srv, ts := newTestServer(t)

	long := strings.Repeat("n", 33)
	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"create without name", http.MethodGet, "/create", http.StatusBadRequest},
		{"create with blank name", http.MethodGet, "/create?name=%20%20", http.StatusBadRequest},
		{"create with long name", http.MethodGet, "/create?name=" + long, http.StatusBadRequest},
		{"create with POST", http.MethodPost, "/create?name=alice", http.StatusBadRequest},
		{"create without upgrade", http.MethodGet, "/create?name=alice", http.StatusUpgradeRequired},
		{"join without name", http.MethodGet, "/join/ABCD", http.StatusBadRequest},
		{"join malformed code", http.MethodGet, "/join/AB1?name=alice", http.StatusNotFound},
		{"join long code", http.MethodGet, "/join/ABCDE?name=alice", http.StatusNotFound},
		{"join without upgrade", http.MethodGet, "/join/ABCD?name=alice", http.StatusUpgradeRequired},
		{"unknown route", http.MethodGet, "/rooms?name=alice", http.StatusBadRequest},
		{"join without code", http.MethodGet, "/join/?name=alice", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, tt.method, ts.URL+tt.path)
			testhelpers.AssertStatusCode(t, resp, tt.status)
			if tt.status == http.StatusUpgradeRequired {
				assert.Equal(t, "websocket", resp.Header.Get("Upgrade"))
			}
		})
	}

	assert.Equal(t, 0, srv.Rooms().Len(), "rejected requests must not create rooms")
}

func TestServerJoinUnknownRoom(t *testing.T) {
	_, ts := newTestServer(t)

	conn, resp, err := testhelpers.Dial(testhelpers.JoinURL(ts.URL, "QQQQ", "alice"))
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Nil(t, conn)
	testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)
}

func TestServerDisallowedOrigin(t *testing.T) {
	srv, ts := newTestServer(t)

	for _, origin := range []string{"http://evil.example", ""} {
		_, resp, err := testhelpers.DialWithOrigin(testhelpers.CreateURL(ts.URL, "mallory"), origin)
		require.Error(t, err)
		testhelpers.AssertStatusCode(t, resp, http.StatusForbidden)
	}

	// The room created for the refused handshake is discarded.
	require.Eventually(t, func() bool { return srv.Rooms().Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServerMessageTooLarge(t *testing.T) {
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	cfg.MaxMessageSize = 16
	srv := server.New(cfg, zap.NewNop(), chat.WithCodeSource(sequence("SIZE")))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	alice := testhelpers.MustDial(t, testhelpers.CreateURL(ts.URL, "alice"))
	testhelpers.ReadState(t, alice)
	bob := testhelpers.MustDial(t, testhelpers.JoinURL(ts.URL, "SIZE", "bob"))
	testhelpers.ReadState(t, bob)
	testhelpers.ReadEvent(t, alice)

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))
	assert.Equal(t, testhelpers.Event{Action: "left", MemberID: 2}, testhelpers.ReadEvent(t, alice))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestServerHealthAndPages(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/", "/healthz"} {
		resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+path)
		testhelpers.AssertStatusCode(t, resp, http.StatusOK)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "rtchat server is running!", string(body))
	}

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/test")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
}

func TestServerMetrics(t *testing.T) {
	_, ts := newTestServer(t, "MTRC")

	conn := testhelpers.MustDial(t, testhelpers.CreateURL(ts.URL, "alice"))
	testhelpers.ReadState(t, conn)

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.URL+"/metrics")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, name := range []string{
		"rtchat_rooms_active",
		"rtchat_rooms_created_total",
		"rtchat_sessions_active",
	} {
		assert.Contains(t, string(body), name)
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	cfg.ShutdownTimeout = 2 * time.Second
	srv := server.New(cfg, zap.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	const clients = 5
	conns := make([]*websocket.Conn, 0, clients)
	first := testhelpers.MustDial(t, testhelpers.CreateURL(base, "host"))
	code := testhelpers.ReadState(t, first).RoomCode
	conns = append(conns, first)
	for i := 1; i < clients; i++ {
		conn := testhelpers.MustDial(t, testhelpers.JoinURL(base, code, "guest"))
		testhelpers.ReadState(t, conn)
		conns = append(conns, conn)
	}
	require.Eventually(t, func() bool { return srv.ActiveSessions() == clients }, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	assert.Equal(t, 0, srv.ActiveSessions())
	assert.Equal(t, 0, srv.Rooms().Len())
	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		var err error
		for err == nil {
			_, _, err = conn.ReadMessage()
		}
		var ne net.Error
		if errors.As(err, &ne) {
			assert.False(t, ne.Timeout(), "connection should be closed, not idle")
		}
	}
}
