// Package relaytest serves a relay.Memory over a real websocket so the
// NIP-01 client can be exercised end to end.
package relaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/Silberengel/scriptorium/internal/record"
	"github.com/Silberengel/scriptorium/internal/relay"
)

// Server is a websocket relay backed by Memory.
type Server struct {
	*httptest.Server
	Memory *relay.Memory
	URL    string
}

// New starts a server and registers its shutdown with t.
func New(t testing.TB) *Server {
	t.Helper()
	mem := relay.NewMemory()
	srv := httptest.NewServer(Handler(mem))
	t.Cleanup(srv.Close)
	return &Server{
		Server: srv,
		Memory: mem,
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// Handler upgrades requests and answers EVENT and REQ frames from mem.
func Handler(mem *relay.Memory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := handle(conn, mem, data); err != nil {
				return
			}
		}
	})
}

func handle(conn *websocket.Conn, mem *relay.Memory, data []byte) error {
	var parts []json.RawMessage
	var label string
	if json.Unmarshal(data, &parts) != nil || len(parts) == 0 || json.Unmarshal(parts[0], &label) != nil {
		return conn.WriteJSON([]any{"NOTICE", "invalid: malformed frame"})
	}

	switch label {
	case "EVENT":
		var ev record.Record
		if len(parts) < 2 || json.Unmarshal(parts[1], &ev) != nil {
			return conn.WriteJSON([]any{"NOTICE", "invalid: malformed event"})
		}
		ok, msg := mem.Store(&ev)
		return conn.WriteJSON([]any{"OK", ev.ID, ok, msg})
	case "REQ":
		var sub string
		if len(parts) < 2 || json.Unmarshal(parts[1], &sub) != nil {
			return conn.WriteJSON([]any{"NOTICE", "invalid: malformed subscription"})
		}
		seen := make(map[string]bool)
		for _, raw := range parts[2:] {
			var f relay.Filter
			if json.Unmarshal(raw, &f) != nil {
				return conn.WriteJSON([]any{"CLOSED", sub, "invalid: malformed filter"})
			}
			for _, ev := range mem.Find(f) {
				if seen[ev.ID] {
					continue
				}
				seen[ev.ID] = true
				if err := conn.WriteJSON([]any{"EVENT", sub, ev}); err != nil {
					return err
				}
			}
		}
		return conn.WriteJSON([]any{"EOSE", sub})
	case "CLOSE":
		return nil
	}
	return conn.WriteJSON([]any{"NOTICE", "unsupported: " + label})
}
