package scheduling

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// stream pushes every new history entry to a websocket client. With
// replay=true the stored history is sent first.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	// Subscribe before replaying so no entry falls in between.
	ch, cancel := h.svc.SubscribeHistory()
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("history stream upgrade: %v", err)
		return
	}
	defer conn.Close()

	if r.URL.Query().Get("replay") == "true" {
		entries, err := h.svc.History(r.Context(), history.Query{})
		if err != nil {
			h.log.Errorf("history stream replay: %v", err)
			return
		}
		for _, e := range entries {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}

	// The reader only drains control frames and notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
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
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case e, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
