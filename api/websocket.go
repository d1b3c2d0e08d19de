package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The monitoring API is bound to 127.0.0.1 only; same-origin checks
	// aren't meaningful for a loopback debugging endpoint.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebsocket upgrades the connection and streams one JSON event per
// retired guest instruction until the client disconnects.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.events.subscribe()
	defer s.events.unsubscribe(sub)

	for event := range sub {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// instructionEvent is one entry of the instruction trace broadcast over
// /ws, identified by the address the instruction was fetched from and a
// snapshot of the register file immediately after it retired.
type instructionEvent struct {
	Sequence  uint64     `json:"sequence"`
	FetchedAt uint32     `json:"fetched_at"`
	Registers [16]uint32 `json:"registers"`
}
