package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"FluxMessenger/server/internal/appMiddleware"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket upgrades the connection and registers the session with the
// fan-out pool. The socket is push-only: all mutations go through the
// HTTP API, and a reconnecting client reconciles by re-fetching messages.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	userID, err := appMiddleware.ParseUserID(tokenStr, h.jwtSecret)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("error upgrading to websocket")
		return
	}

	client := h.pool.AddClient(userID, conn)
	h.log.Info().Int64("user_id", userID).Str("session_id", client.SessionID).Msg("user connected to websocket")

	go client.WritePump()
	go client.ReadPump()
}

// Presence lists users with at least one live websocket session.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.currentUserID(w, r); !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_ids": h.pool.ConnectedUserIDs(),
	})
}
