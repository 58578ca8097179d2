package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/fleetsim/core/report"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWS streams report batches as JSON text frames. ?run_id= limits the
// feed to one run and ?type= to a list of report types. Slow clients miss
// batches rather than stall the simulation.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	var types map[report.Type]bool
	if raw := r.URL.Query()["type"]; len(raw) > 0 {
		types = map[report.Type]bool{}
		for _, name := range raw {
			t, err := report.ParseType(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			types[t] = true
		}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	// reader: handles pongs and notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case b, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bus closed"),
					time.Now().Add(writeWait))
				return
			}
			if runID != "" && b.RunID != runID {
				continue
			}
			if types != nil {
				b = filterBatch(b, types)
				if len(b.Reports) == 0 {
					continue
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(b); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func filterBatch(b report.Batch, types map[report.Type]bool) report.Batch {
	kept := make([]report.Report, 0, len(b.Reports))
	for _, rep := range b.Reports {
		if types[rep.Type] {
			kept = append(kept, rep)
		}
	}
	b.Reports = kept
	return b
}
