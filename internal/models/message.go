package models

import (
	"sort"
	"time"
)

type Message struct {
	ID               int64      `json:"id" db:"id"`
	ConversationID   int64      `json:"conversation_id" db:"conversation_id"`
	AuthorID         int64      `json:"author_id" db:"author_id"`
	Content          *string    `json:"content" db:"content"`
	AssetID          *string    `json:"asset_id,omitempty" db:"asset_id"`
	ReplyToMessageID *int64     `json:"reply_to_message_id,omitempty" db:"reply_to_message_id"`
	IsSystemMessage  bool       `json:"is_system_message" db:"is_system_message"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	EditedAt         *time.Time `json:"edited_at,omitempty" db:"edited_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	Reactions        Reactions  `json:"reactions" db:"reactions"`
}

func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Reactions maps an emoji to the set of user ids that reacted with it.
// Stored as jsonb on the message row.
type Reactions map[string][]int64

// Add records a reaction and reports whether the set changed. Adding an
// already-present (user, emoji) pair is a no-op.
func (r Reactions) Add(emoji string, userID int64) bool {
	for _, id := range r[emoji] {
		if id == userID {
			return false
		}
	}
	r[emoji] = append(r[emoji], userID)
	sort.Slice(r[emoji], func(i, j int) bool { return r[emoji][i] < r[emoji][j] })
	return true
}

// Remove drops a reaction and reports whether the set changed. Removing an
// absent pair is a no-op. An emoji with no remaining users is dropped from
// the map.
func (r Reactions) Remove(emoji string, userID int64) bool {
	users, ok := r[emoji]
	if !ok {
		return false
	}
	for i, id := range users {
		if id == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(r, emoji)
			} else {
				r[emoji] = users
			}
			return true
		}
	}
	return false
}

type Pin struct {
	ConversationID int64     `json:"conversation_id" db:"conversation_id"`
	MessageID      int64     `json:"message_id" db:"message_id"`
	PinnedBy       int64     `json:"pinned_by" db:"pinned_by"`
	PinnedAt       time.Time `json:"pinned_at" db:"pinned_at"`
	Message        *Message  `json:"message,omitempty"`
}

// Thread is a root message with its ordered replies.
type Thread struct {
	RootMessage *Message  `json:"root_message"`
	Messages    []Message `json:"messages"`
	ReplyCount  int       `json:"reply_count"`
}

// ThreadSummary is the lightweight view of a thread, recomputed from the
// message list rather than stored.
type ThreadSummary struct {
	RootMessageID  int64      `json:"root_message_id"`
	ReplyCount     int        `json:"reply_count"`
	LastReplyAt    *time.Time `json:"last_reply_at,omitempty"`
	ParticipantIDs []int64    `json:"participant_ids"`
}
