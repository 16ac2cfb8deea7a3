package handlers

import (
	"encoding/json"
	"net/http"

	"FluxMessenger/server/internal/models"
	"FluxMessenger/server/internal/pool"
)

func (h *Handler) ListPins(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	pins, err := h.messages.ListPins(r.Context(), conversationID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if pins == nil {
		pins = []models.Pin{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"pins":            pins,
	})
}

func (h *Handler) PinMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID <= 0 {
		h.writeError(w, models.NewValidationError("message_id is required"))
		return
	}

	pin, err := h.messages.PinMessage(r.Context(), conversationID, req.MessageID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.pool.BroadcastEvent(r.Context(), conversationID, pool.EventPinAdded, pin)
	h.activity.Record(r.Context(), userID, "message.pin", map[string]interface{}{
		"conversation_id": conversationID,
		"message_id":      req.MessageID,
	})

	h.writeJSON(w, http.StatusCreated, pin)
}

func (h *Handler) UnpinMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	messageID, err := urlParamInt64(r, "message_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	removed, err := h.messages.UnpinMessage(r.Context(), conversationID, messageID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if removed {
		h.pool.BroadcastEvent(r.Context(), conversationID, pool.EventPinRemoved, map[string]interface{}{
			"conversation_id": conversationID,
			"message_id":      messageID,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}
