package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavelanni/focusroom/internal/session"
)

const (
	eventBuffer = 64
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage is one frame of the event stream. The first frame carries the
// current view, later frames one event each.
type wsMessage struct {
	Type  string         `json:"type"`
	View  *session.View  `json:"view,omitempty"`
	Event *session.Event `json:"event,omitempty"`
}

// handleEvents streams the events of a session over a websocket. Events
// that do not fit the buffer of a slow client are dropped.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	events := make(chan session.Event, eventBuffer)
	unsubscribe := c.Subscribe(func(e session.Event) {
		select {
		case events <- e:
		default:
			slog.Warn("event stream full, dropping event", "session", e.SessionID, "seq", e.Seq)
		}
	})
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	v := c.Snapshot()
	if err := send(ws, wsMessage{Type: "view", View: &v}); err != nil {
		return
	}
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case e := <-events:
			if err := send(ws, wsMessage{Type: "event", Event: &e}); err != nil {
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			slog.Debug("websocket client disconnected", "session", c.ID())
			return
		case <-r.Context().Done():
			return
		}
	}
}

func send(ws *websocket.Conn, m wsMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := ws.WriteJSON(m)
	if err != nil {
		slog.Warn("failed to write websocket JSON", "error", err)
	}
	return err
}
