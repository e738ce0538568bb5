package wire

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsConn adapts *websocket.Conn to the Hub's conn interface.
type wsConn struct{ c *websocket.Conn }

func (w wsConn) WriteJSON(v interface{}) error { return w.c.WriteJSON(v) }
func (w wsConn) Close() error                  { return w.c.Close() }

// WebSocketHandler upgrades incoming HTTP requests to WebSocket
// connections, enforcing origin, and dispatches JSON-RPC frames against
// hub. Grounded on the teacher's Server.handleWS (internal/ws/server.go),
// generalized from the custom WSMessage envelope to JSON-RPC request/
// response framing.
func WebSocketHandler(hub *Hub, allowlist *OriginAllowlist) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: allowlist.CheckOrigin}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("wire: ws upgrade error: %v", err)
			return
		}

		cl := hub.AddClient(wsConn{conn})
		defer hub.RemoveClient(cl)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req, err := ParseRequest(data)
			if err != nil {
				resp := NewError(nil, CodeParseError, "parse error")
				conn.WriteJSON(resp)
				continue
			}
			if resp := hub.Dispatch(cl, req); resp != nil {
				conn.WriteJSON(resp)
			}
		}
	}
}
