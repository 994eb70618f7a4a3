// Package server exposes HTTP handlers, including the create and join
// WebSocket routes, health checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/Tyrowin/rtchat/internal/chat"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// handleCreate creates a room and runs the caller's session in it.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, rerr := parseIntent(r, intentCreate, s.cfg.MaxNameLength)
	if rerr != nil {
		rerr.write(w)
		return
	}

	code, room, err := s.rooms.CreateRoom()
	if err != nil {
		s.log.Warn("create room failed", zap.Error(err))
		errNoRoomCode.write(w)
		return
	}
	s.log.Debug("room requested", zap.String("room", code), zap.String("name", in.name))

	s.serveSession(w, r, in.name, room)
}

// handleJoin looks up the room named in the path and runs the caller's
// session in it.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	in, rerr := parseIntent(r, intentJoin, s.cfg.MaxNameLength)
	if rerr != nil {
		rerr.write(w)
		return
	}

	room, ok := s.rooms.GetRoom(in.code)
	if !ok {
		errRoomNotFound.write(w)
		return
	}

	s.serveSession(w, r, in.name, room)
}

// serveSession upgrades the connection inside the session's handshake step
// and blocks until the session is closed. Errors are logged here; they never
// leave the handler.
func (s *Server) serveSession(w http.ResponseWriter, r *http.Request, name string, room *chat.Room) {
	log := s.log.With(zap.String("conn", uuid.NewString()), zap.String("remote", r.RemoteAddr))

	handshake := func() (chat.Conn, error) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	session := chat.NewSession(name, room, handshake, chat.SessionOptions{
		MaxMessageSize: s.cfg.MaxMessageSize,
		WriteTimeout:   s.cfg.WriteTimeout,
		PingInterval:   s.cfg.PingInterval,
		PongWait:       s.cfg.PongWait,
		Logger:         log,
	})

	if !s.sessions.add(session) {
		errShuttingDown.write(w)
		return
	}
	defer s.sessions.remove(session)

	if err := session.Run(s.ctx); err != nil {
		log.Warn("session ended with error", zap.Error(err))
	}
}

// handleUnknownRoute answers every path without a route.
func handleUnknownRoute(w http.ResponseWriter, _ *http.Request) {
	errUnknownRoute.write(w)
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "rtchat server is running!")
}

// TestPageHandler serves an HTML page for creating or joining a room from a
// browser and exchanging messages in it.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>rtchat test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 200px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>rtchat</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="nameInput" placeholder="Your name">
        <input type="text" id="codeInput" placeholder="Room code (to join)">
        <button onclick="openRoom('create')">Create</button>
        <button onclick="openRoom('join')">Join</button>
        <button onclick="leave()">Leave</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        let me = null;
        const names = {};
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'gray';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(text, connected) {
            statusDiv.textContent = text;
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
        }

        function openRoom(kind) {
            if (ws) ws.close();
            const name = encodeURIComponent(document.getElementById('nameInput').value);
            const code = document.getElementById('codeInput').value.trim();
            const base = (location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host;
            const url = kind === 'create'
                ? base + '/create?name=' + name
                : base + '/join/' + encodeURIComponent(code) + '?name=' + name;

            ws = new WebSocket(url);
            ws.onmessage = function(event) {
                const msg = JSON.parse(event.data);
                if (msg.error) {
                    addLine('Error: ' + msg.error, 'red');
                } else if (msg.roomCode) {
                    me = msg.memberId;
                    Object.assign(names, msg.memberNames);
                    updateStatus('In room ' + msg.roomCode + ' as #' + me, true);
                    addLine('Members: ' + Object.values(msg.memberNames).join(', '));
                } else if (msg.action === 'joined') {
                    names[msg.memberId] = msg.name;
                    addLine(msg.name + ' joined');
                } else if (msg.action === 'left') {
                    addLine((names[msg.memberId] || '#' + msg.memberId) + ' left');
                    delete names[msg.memberId];
                } else if (msg.action === 'sent') {
                    const who = msg.memberId === me ? 'You' : (names[msg.memberId] || '#' + msg.memberId);
                    addLine(who + ': ' + msg.text, msg.memberId === me ? 'blue' : 'green');
                }
            };
            ws.onclose = function() {
                updateStatus('Disconnected', false);
                ws = null;
            };
            ws.onerror = function() {
                addLine('Connection error', 'red');
            };
        }

        function leave() {
            if (ws) ws.close();
        }

        function sendMessage() {
            const message = messageInput.value;
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(message);
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
