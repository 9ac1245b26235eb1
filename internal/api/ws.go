package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/mentora-labs/mentora/internal/events"
)

// writeTimeout bounds a single event write to a client.
const writeTimeout = 10 * time.Second

// WSHandler pushes engine outcome events to connected UI clients over
// WebSocket.
type WSHandler struct {
	hub           *events.Hub
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewWSHandler creates a new WebSocket event handler.
func NewWSHandler(hub *events.Hub, allowedOrigin string, isDev bool, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

// ServeHTTP upgrades the connection and relays outcome events until the
// client disconnects.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed closed"); closeErr != nil {
			h.logger.Debug("WebSocket close error", "error", closeErr)
		}
	}()

	subID, ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(subID)

	ctx := r.Context()
	h.logger.Info("event feed connected", "subscriber", subID, "ip", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case outcome, ok := <-ch:
			if !ok {
				return
			}
			if err := h.writeOutcome(ctx, ws, outcome); err != nil {
				h.logger.Debug("event feed write failed", "subscriber", subID, "error", err)
				return
			}
		}
	}
}

func (h *WSHandler) writeOutcome(ctx context.Context, ws *websocket.Conn, outcome events.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, payload)
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.isDev || h.allowedOrigin == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.allowedOrigin
}
