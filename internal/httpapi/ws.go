package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/bridge"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The map surface is served from the same host; same-origin only.
	CheckOrigin: func(r *http.Request) bool {
		return r.Header.Get("Origin") == "" || r.Host == "" || r.Header.Get("Origin") == "http://"+r.Host || r.Header.Get("Origin") == "https://"+r.Host
	},
}

// handleBridge upgrades to a websocket and shuttles bridge traffic. One
// connection at a time holds the command sink; a newer connection replaces
// an older one.
func (h *Handler) handleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("bridge upgrade failed")
		return
	}
	h.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("bridge connected")

	out := make(chan bridge.Command, 32)
	done := make(chan struct{})
	gen := h.session.SetSink(func(c bridge.Command) {
		select {
		case out <- c:
		default:
			h.log.Warn().Str("kind", string(c.Kind)).Msg("bridge command dropped, slow consumer")
		}
	})

	go func() {
		defer conn.Close()
		for {
			select {
			case c := <-out:
				if err := conn.WriteJSON(c); err != nil {
					h.log.Debug().Err(err).Msg("bridge write failed")
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var m bridge.Message
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("bridge read failed")
			}
			break
		}
		h.session.Deliver(m)
	}

	h.session.ClearSink(gen)
	close(done)
	h.log.Info().Msg("bridge disconnected")
}
