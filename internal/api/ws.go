package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 5 * time.Second
)

// ProgressWSHandler streams progress events of one run. The stream ends
// after the run's "done" event or when the client goes away.
func (s *Server) ProgressWSHandler(w http.ResponseWriter, r *http.Request, runID string) {
	// Subscribed before the handshake: a run posted right after the dial
	// returns must not miss its first events.
	ch := s.Broker.Subscribe(runID)
	defer s.Broker.Unsubscribe(runID, ch)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	log := s.Log.With().Str("run_id", runID).Logger()
	log.Debug().Msg("progress stream opened")

	var mu sync.Mutex
	write := func(fn func() error) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return fn()
	}

	// Read loop only services control frames and notices the close.
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(func() error { return conn.WriteJSON(evt) }); err != nil {
				log.Debug().Err(err).Msg("progress stream write failed")
				return
			}
			if evt.Phase == "done" {
				_ = write(func() error {
					return conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				})
				return
			}
		}
	}
}
