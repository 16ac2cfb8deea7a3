package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"FluxMessenger/server/internal/models"
	"FluxMessenger/server/internal/pool"
	"FluxMessenger/server/internal/services"
)

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	var input services.CreateConversationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, models.NewValidationError("invalid request body"))
		return
	}

	conv, err := h.conversations.CreateConversation(r.Context(), userID, input)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.activity.Record(r.Context(), userID, "conversation.create", map[string]interface{}{
		"conversation_id": conv.ID,
		"is_group":        conv.IsGroup,
	})
	h.pool.BroadcastEvent(r.Context(), conv.ID, pool.EventConversationCreated, conv)

	h.writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	projectID := queryInt64Ptr(r, "project_id")

	entries, err := h.conversations.ListConversationsForUser(r.Context(), userID, limit, offset, projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.ConversationListEntry{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": entries,
		"limit":         limit,
		"offset":        offset,
	})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	conv, err := h.conversations.GetConversationByID(r.Context(), conversationID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var patch models.ConversationPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, models.NewValidationError("invalid request body"))
		return
	}

	conv, err := h.conversations.UpdateConversation(r.Context(), conversationID, userID, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.activity.Record(r.Context(), userID, "conversation.update", map[string]interface{}{
		"conversation_id": conversationID,
	})

	h.writeJSON(w, http.StatusOK, conv)
}

// GetMembers lists the conversation's members together with their
// directory entries.
func (h *Handler) GetMembers(w http.ResponseWriter, r *http.Request) {
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

	members, err := h.conversations.GetMembers(r.Context(), conversationID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if members == nil {
		members = []models.Member{}
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := h.users.GetUsersByIDs(r.Context(), ids)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"members":         members,
		"users":           users,
	})
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
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
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		h.writeError(w, models.NewValidationError("user_id is required"))
		return
	}

	member, err := h.conversations.AddMember(r.Context(), conversationID, userID, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.announceMembershipChange(r, conversationID, userID, req.UserID, "%s joined the conversation", pool.EventMemberAdded)
	h.activity.Record(r.Context(), userID, "conversation.member.add", map[string]interface{}{
		"conversation_id": conversationID,
		"user_id":         req.UserID,
	})

	h.writeJSON(w, http.StatusCreated, member)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	conversationID, err := urlParamInt64(r, "conversation_id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	targetID, err := urlParamInt64(r, "user_id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	removed, err := h.conversations.RemoveMember(r.Context(), conversationID, userID, targetID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if removed > 0 {
		h.announceMembershipChange(r, conversationID, userID, targetID, "%s left the conversation", pool.EventMemberRemoved)
		// The removed member is no longer in the broadcast set; tell
		// their sessions directly.
		h.pool.BroadcastToUser(targetID, conversationID, pool.EventMemberRemoved, map[string]interface{}{
			"conversation_id": conversationID,
			"user_id":         targetID,
			"actor_id":        userID,
		})
		h.activity.Record(r.Context(), userID, "conversation.member.remove", map[string]interface{}{
			"conversation_id": conversationID,
			"user_id":         targetID,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// announceMembershipChange writes the system message and pushes the
// membership event. Both are best effort: a failure here never unwinds
// the membership change itself.
func (h *Handler) announceMembershipChange(r *http.Request, conversationID, actorID, subjectID int64, format, event string) {
	name := fmt.Sprintf("user %d", subjectID)
	if user, err := h.users.GetUserByID(r.Context(), subjectID); err == nil {
		name = user.Username
	}

	sysMsg, err := h.messages.CreateMessage(r.Context(), services.CreateMessageInput{
		ConversationID:  conversationID,
		AuthorID:        actorID,
		Content:         fmt.Sprintf(format, name),
		IsSystemMessage: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Int64("conversation_id", conversationID).Msg("error writing system message")
	} else {
		h.pool.BroadcastEvent(r.Context(), conversationID, pool.EventMessageCreated, sysMsg)
	}

	h.pool.BroadcastEvent(r.Context(), conversationID, event, map[string]interface{}{
		"conversation_id": conversationID,
		"user_id":         subjectID,
		"actor_id":        actorID,
	})
}
