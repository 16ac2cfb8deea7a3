package handlers

import (
	"encoding/json"
	"net/http"

	"FluxMessenger/server/internal/models"
	"FluxMessenger/server/internal/pool"
)

// MarkRead advances the caller's read cursor. The cursor never moves
// backward, so replayed or out-of-order calls report updated=false.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
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
		LastReadMessageID int64 `json:"last_read_message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LastReadMessageID <= 0 {
		h.writeError(w, models.NewValidationError("last_read_message_id is required"))
		return
	}

	updated, err := h.readStates.SetLastRead(r.Context(), conversationID, userID, req.LastReadMessageID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if updated {
		h.pool.BroadcastEvent(r.Context(), conversationID, pool.EventReadReceipt, map[string]interface{}{
			"conversation_id":      conversationID,
			"user_id":              userID,
			"last_read_message_id": req.LastReadMessageID,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (h *Handler) GetReadStates(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	isMember, err := h.conversations.IsMember(r.Context(), conversationID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !isMember {
		h.writeError(w, models.ErrNotFound)
		return
	}

	states, err := h.readStates.GetConversationReadStates(r.Context(), conversationID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"read_states":     states,
	})
}

func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	isMember, err := h.conversations.IsMember(r.Context(), conversationID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !isMember {
		h.writeError(w, models.ErrNotFound)
		return
	}

	count, err := h.readStates.GetUnreadCount(r.Context(), conversationID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"unread_count":    count,
	})
}
