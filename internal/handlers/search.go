package handlers

import (
	"net/http"

	"FluxMessenger/server/internal/models"
	"FluxMessenger/server/internal/services"
)

// SearchMessages runs a membership-scoped full-text search. The route is
// rate limited per user.
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	conversationID := queryInt64Ptr(r, "conversation_id")

	messages, err := h.messages.SearchMessages(r.Context(), services.SearchMessagesInput{
		UserID:         userID,
		Query:          query,
		ConversationID: conversationID,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":    query,
		"messages": messages,
	})
}
