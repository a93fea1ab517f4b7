// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// NewWebSocketHandler returns the handler for WebSocket upgrade requests.
// It upgrades the connection, assigns it a connection identity, wires a
// Session to the Directory, pushes the initial room list, and registers
// the client with the hub, which launches the pump goroutines.
func NewWebSocketHandler(hub *Hub, dir *Directory, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws.upgrade", "err", err)
			return
		}

		id := uuid.NewString()
		client := NewClient(conn, hub, id, r.RemoteAddr, logger)
		client.SetSession(NewSession(id, dir, client.Queue, logger))

		// The initial room list sits in the send buffer until the hub
		// starts the write pump.
		client.sess.SendRoomList()

		hub.Register(client)
	}
}

// HealthHandler provides a simple health check endpoint that returns
// server status as plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "hey-chat relay is running!")
}

// TestPageHandler serves an HTML test page for exercising the chat relay.
// It provides a simple web interface to join a room, send messages, and
// watch presence and typing notifications.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>hey-chat Test</title>
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
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        #rooms { color: #555; margin: 10px 0; }
        #typing { color: #888; font-style: italic; height: 1em; }
    </style>
</head>
<body>
    <h1>hey-chat Test</h1>

    <div id="rooms">Rooms: (none)</div>

    <div>
        <input type="text" id="username" placeholder="Display name">
        <input type="text" id="room" placeholder="Room">
        <button onclick="join()">Join</button>
    </div>

    <div id="messages"></div>
    <div id="typing"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        const ws = new WebSocket('ws://' + location.host + '/ws');
        let typingTimer = null;

        function addLine(text) {
            const div = document.createElement('div');
            div.textContent = text;
            const messages = document.getElementById('messages');
            messages.appendChild(div);
            messages.scrollTop = messages.scrollHeight;
        }

        function emit(type, data) {
            ws.send(JSON.stringify({type: type, data: data}));
        }

        ws.onmessage = function(event) {
            const evt = JSON.parse(event.data);
            switch (evt.type) {
                case 'roomListUpdate':
                    document.getElementById('rooms').textContent =
                        'Rooms: ' + ((evt.data && evt.data.length) ? evt.data.join(', ') : '(none)');
                    break;
                case 'joinResult':
                    if (evt.data.success) {
                        document.getElementById('messageInput').disabled = false;
                        document.getElementById('sendButton').disabled = false;
                        addLine('Joined.');
                    } else {
                        addLine('Join failed: ' + evt.data.error);
                    }
                    break;
                case 'userJoined':
                case 'userLeft':
                    addLine(evt.data);
                    break;
                case 'receiveMessage':
                    addLine('[' + evt.data.timestamp + '] ' + evt.data.username + ': ' + evt.data.message);
                    break;
                case 'userTyping':
                    document.getElementById('typing').textContent = evt.data;
                    clearTimeout(typingTimer);
                    typingTimer = setTimeout(function() {
                        document.getElementById('typing').textContent = '';
                    }, 2000);
                    break;
            }
        };

        function join() {
            emit('joinRoom', {
                username: document.getElementById('username').value,
                room: document.getElementById('room').value
            });
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            if (input.value.trim()) {
                emit('sendMessage', {message: input.value});
                input.value = '';
            }
        }

        document.getElementById('messageInput').addEventListener('input', function() {
            emit('typing', {});
        });
        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("handlers.test_page", "err", err)
	}
}
