package gateway

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The gateway sits behind whatever origin policy the deployment
	// needs; same-origin enforcement happens upstream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsInbound is one client message over the socket.
type wsInbound struct {
	Message string `json:"message"`
}

// wsOutbound is one server frame: streamed fragments followed by a
// final done frame carrying the assembled reply.
type wsOutbound struct {
	Type    string `json:"type"` // "fragment", "done" or "error"
	Content string `json:"content,omitempty"`
	Reply   string `json:"reply,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleWS runs a streaming chat session over one WebSocket. Each
// inbound message is a full conversational turn; fragments stream back
// as the generator produces them.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("user"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, errEmptyUser)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	log := g.log.With().Str("user", userID).Logger()
	log.Debug().Msg("websocket session opened")

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		reply, err := g.engine.ChatStream(r.Context(), userID, in.Message, func(fragment string) {
			_ = conn.WriteJSON(wsOutbound{Type: "fragment", Content: fragment})
		})
		if err != nil {
			_ = conn.WriteJSON(wsOutbound{Type: "error", Error: err.Error()})
			continue
		}
		_ = conn.WriteJSON(wsOutbound{Type: "done", Reply: reply})
	}
}
