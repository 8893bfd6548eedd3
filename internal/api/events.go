package api

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/datallboy/gosplice/internal/events"
	"github.com/datallboy/gosplice/internal/infra/logger"
)

const eventWriteTimeout = 5 * time.Second

// EventsHandler streams every job event to a websocket client as JSON.
type EventsHandler struct {
	Hub    *events.Hub
	Logger *logger.Logger
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.Logger.Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	// Clients only listen; CloseRead handles their pings and close frames
	ctx := conn.CloseRead(r.Context())

	ch, unsubscribe := h.Hub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := writeEvent(ctx, conn, e); err != nil {
				h.Logger.Debug("Websocket client gone: %v", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
