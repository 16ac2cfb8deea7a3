package handlers

import (
	"errors"
	"net/http"

	"FluxMessenger/server/internal/models"
)

func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	rootMessageID, err := urlParamInt64(r, "message_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	limit := queryInt(r, "limit", 100)

	thread, err := h.threads.ListThreadMessages(r.Context(), conversationID, rootMessageID, userID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, thread)
}

func (h *Handler) GetThreadSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	rootMessageID, err := urlParamInt64(r, "message_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	summary, err := h.threads.GetThreadSummary(r.Context(), conversationID, rootMessageID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// GetConversationSummary asks the optional AI collaborator to summarize
// recent messages. A disabled provider degrades to available=false; it is
// never an error.
func (h *Handler) GetConversationSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	messages, err := h.messages.ListMessages(r.Context(), conversationID, userID, 50, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if !h.summaries.Enabled() {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"conversation_id": conversationID,
			"available":       false,
		})
		return
	}

	summary, err := h.summaries.Summarize(r.Context(), messages)
	if err != nil {
		if errors.Is(err, models.ErrUpstreamUnavailable) {
			h.writeError(w, models.ErrUpstreamUnavailable)
			return
		}
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"available":       true,
		"summary":         summary,
	})
}
