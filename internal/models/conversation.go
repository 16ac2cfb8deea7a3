package models

import (
	"time"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type Conversation struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID *int64    `json:"organization_id,omitempty" db:"organization_id"`
	ProjectID      *int64    `json:"project_id,omitempty" db:"project_id"`
	Name           string    `json:"name,omitempty" db:"name"`
	IsGroup        bool      `json:"is_group" db:"is_group"`
	CreatedBy      int64     `json:"created_by" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	Members        []Member  `json:"members,omitempty"`
}

type Member struct {
	ConversationID    int64      `json:"conversation_id" db:"conversation_id"`
	UserID            int64      `json:"user_id" db:"user_id"`
	Role              string     `json:"role" db:"role"`
	JoinedAt          time.Time  `json:"joined_at" db:"joined_at"`
	LastReadMessageID *int64     `json:"last_read_message_id,omitempty" db:"last_read_message_id"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	MutedAt           *time.Time `json:"muted_at,omitempty" db:"muted_at"`
}

// ConversationListEntry is a conversation as it appears in a user's inbox:
// the row itself plus the last message preview and the unread counter.
type ConversationListEntry struct {
	Conversation
	LastMessagePreview *string    `json:"last_message_preview,omitempty"`
	LastActivityAt     *time.Time `json:"last_activity_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
}

// ReadState is the per-member read cursor exposed to other members.
type ReadState struct {
	UserID            int64      `json:"user_id"`
	LastReadMessageID *int64     `json:"last_read_message_id"`
	LastReadAt        *time.Time `json:"last_read_at"`
}

// ConversationPatch carries the mutable conversation fields. Nil means
// "leave unchanged".
type ConversationPatch struct {
	Name    *string `json:"name"`
	IsGroup *bool   `json:"is_group"`
}
