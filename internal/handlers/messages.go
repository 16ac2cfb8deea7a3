package handlers

import (
	"encoding/json"
	"net/http"

	"FluxMessenger/server/internal/models"
	"FluxMessenger/server/internal/pool"
	"FluxMessenger/server/internal/services"
)

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
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
		Content          string  `json:"content"`
		AssetID          *string `json:"asset_id"`
		ReplyToMessageID *int64  `json:"reply_to_message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, models.NewValidationError("invalid request body"))
		return
	}

	msg, err := h.messages.CreateMessage(r.Context(), services.CreateMessageInput{
		ConversationID:   conversationID,
		AuthorID:         userID,
		Content:          req.Content,
		AssetID:          req.AssetID,
		ReplyToMessageID: req.ReplyToMessageID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.activity.Record(r.Context(), userID, "message.create", map[string]interface{}{
		"conversation_id": conversationID,
		"message_id":      msg.ID,
	})
	h.pool.BroadcastEvent(r.Context(), conversationID, pool.EventMessageCreated, msg)

	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	limit := queryInt(r, "limit", 50)
	before := queryInt64Ptr(r, "before")

	messages, err := h.messages.ListMessages(r.Context(), conversationID, userID, limit, before)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	messageID, err := urlParamInt64(r, "message_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, models.NewValidationError("invalid request body"))
		return
	}

	msg, err := h.messages.EditMessage(r.Context(), messageID, userID, req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.activity.Record(r.Context(), userID, "message.edit", map[string]interface{}{
		"message_id": messageID,
	})
	h.pool.BroadcastEvent(r.Context(), msg.ConversationID, pool.EventMessageEdited, msg)

	h.writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	messageID, err := urlParamInt64(r, "message_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	msg, deleted, err := h.messages.DeleteMessage(r.Context(), messageID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if deleted {
		h.pool.BroadcastEvent(r.Context(), msg.ConversationID, pool.EventMessageDeleted, map[string]interface{}{
			"message_id":      messageID,
			"conversation_id": msg.ConversationID,
		})
		h.activity.Record(r.Context(), userID, "message.delete", map[string]interface{}{
			"message_id": messageID,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) AddReaction(w http.ResponseWriter, r *http.Request) {
	h.mutateReaction(w, r, true)
}

func (h *Handler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	h.mutateReaction(w, r, false)
}

func (h *Handler) mutateReaction(w http.ResponseWriter, r *http.Request, add bool) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	messageID, err := urlParamInt64(r, "message_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var emoji string
	if add {
		var req struct {
			Emoji string `json:"emoji"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Emoji == "" {
			h.writeError(w, models.NewValidationError("emoji is required"))
			return
		}
		emoji = req.Emoji
	} else {
		emoji = r.URL.Query().Get("emoji")
		if emoji == "" {
			h.writeError(w, models.NewValidationError("emoji is required"))
			return
		}
	}

	var reactions models.Reactions
	if add {
		reactions, err = h.messages.AddReaction(r.Context(), messageID, userID, emoji)
	} else {
		reactions, err = h.messages.RemoveReaction(r.Context(), messageID, userID, emoji)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	if msg, err := h.messages.GetMessageByID(r.Context(), messageID, userID); err == nil {
		h.pool.BroadcastEvent(r.Context(), msg.ConversationID, pool.EventReactionUpdated, map[string]interface{}{
			"message_id": messageID,
			"reactions":  reactions,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message_id": messageID,
		"reactions":  reactions,
	})
}
