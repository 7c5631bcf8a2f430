package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The protocol authenticates every frame with a per-session
		// token, so origin checking buys nothing here.
		return true
	},
}

// wsConn adapts a gorilla WebSocket connection to the Conn interface the
// event loop writes to.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

// WriteText sends one text frame.
func (c *wsConn) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return websocket.ErrCloseSent
	}
	c.closeMu.Unlock()

	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection once.
func (c *wsConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.ws.Close()
}

// HandleWebSocket upgrades the HTTP connection and pumps its frames into
// the event loop. One goroutine per connection does the reading; all
// processing happens on the loop.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		errorLog.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := newWSConn(ws)
	debugLog.Printf("WebSocket connection from %s", ws.RemoteAddr())

	s.Connect(conn)
	defer func() {
		s.Disconnect(conn)
		conn.Close()
	}()

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			debugLog.Printf("WebSocket read from %s ended: %v", ws.RemoteAddr(), err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.Receive(data)
	}
}
