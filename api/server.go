// Package api exposes a read-only HTTP/WebSocket view of a running Onramp
// VM for host-side monitoring tools. It never mutates guest-visible
// state: handlers only read a snapshot of VM.Registers/VM.Memory between
// instructions.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/onramp-run/onramp-vm/vm"
)

// Server is the HTTP/WS monitoring endpoint for a single VM instance.
type Server struct {
	VM        *vm.VM
	Port      int
	SessionID string

	http   *http.Server
	events *broadcaster
}

// NewServer creates a monitoring server for machine on the given port.
// Each server instance is tagged with its own session ID.
func NewServer(machine *vm.VM, port int) *Server {
	s := &Server{
		VM:        machine,
		Port:      port,
		SessionID: uuid.NewString(),
		events:    newBroadcaster(),
	}
	machine.OnStep = func(fetchedAt uint32) {
		s.events.publish(fetchedAt, machine.Registers.Snapshot())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/ws", s.handleWebsocket)

	s.http = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: mux,
	}
	return s
}

// Start begins serving in the background. Errors after startup (beyond
// the listener failing to bind) are not surfaced to the caller: this is
// a fire-and-forget monitoring server, not part of guest semantics.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("binding monitoring API: %w", err)
	}
	go func() {
		_ = s.http.Serve(ln)
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.http.Shutdown(ctx)
	s.events.closeAll()
}

// stateSnapshot is the JSON shape returned by GET /state.
type stateSnapshot struct {
	SessionID        string     `json:"session_id"`
	Registers        [16]uint32 `json:"registers"`
	InstructionCount uint64     `json:"instruction_count"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.VM.Registers.Snapshot()
	body := stateSnapshot{
		SessionID:        s.SessionID,
		Registers:        snap,
		InstructionCount: s.VM.InstructionCount,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
