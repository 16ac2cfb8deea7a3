package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"FluxMessenger/server/internal/models"
)

// editWindow bounds how long the author may edit a message after sending.
const editWindow = 15 * time.Minute

const maxPinsReturned = 20

type CreateMessageInput struct {
	ConversationID   int64   `json:"conversation_id"`
	AuthorID         int64   `json:"author_id"`
	Content          string  `json:"content"`
	AssetID          *string `json:"asset_id"`
	ReplyToMessageID *int64  `json:"reply_to_message_id"`
	IsSystemMessage  bool    `json:"is_system_message"`
}

type SearchMessagesInput struct {
	UserID         int64
	Query          string
	ConversationID *int64
	Limit          int
	Offset         int
}

type MessageService interface {
	CreateMessage(ctx context.Context, input CreateMessageInput) (*models.Message, error)
	GetMessageByID(ctx context.Context, messageID, requestingUserID int64) (*models.Message, error)
	EditMessage(ctx context.Context, messageID, userID int64, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID int64) (*models.Message, bool, error)
	ListMessages(ctx context.Context, conversationID, requestingUserID int64, limit int, before *int64) ([]models.Message, error)
	AddReaction(ctx context.Context, messageID, userID int64, emoji string) (models.Reactions, error)
	RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (models.Reactions, error)
	SearchMessages(ctx context.Context, input SearchMessagesInput) ([]models.Message, error)
	PinMessage(ctx context.Context, conversationID, messageID, userID int64) (*models.Pin, error)
	UnpinMessage(ctx context.Context, conversationID, messageID, userID int64) (bool, error)
	ListPins(ctx context.Context, conversationID, requestingUserID int64) ([]models.Pin, error)
}

type messageService struct {
	pool          *pgxpool.Pool
	conversations ConversationService
	clock         clockwork.Clock
	log           zerolog.Logger
}

func NewMessageService(pool *pgxpool.Pool, conversations ConversationService, clock clockwork.Clock, log zerolog.Logger) *messageService {
	return &messageService{
		pool:          pool,
		conversations: conversations,
		clock:         clock,
		log:           log,
	}
}

// editWindowOpen reports whether a message created at createdAt may still
// be edited at the clock's current time.
func editWindowOpen(clock clockwork.Clock, createdAt time.Time) bool {
	return clock.Now().Sub(createdAt) <= editWindow
}

const messageColumns = "id, conversation_id, author_id, content, asset_id, reply_to_message_id, is_system_message, created_at, edited_at, deleted_at, reactions"

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.AuthorID, &msg.Content, &msg.AssetID,
		&msg.ReplyToMessageID, &msg.IsSystemMessage, &msg.CreatedAt, &msg.EditedAt,
		&msg.DeletedAt, &msg.Reactions)
	if err != nil {
		return nil, err
	}
	if msg.Reactions == nil {
		msg.Reactions = models.Reactions{}
	}
	return &msg, nil
}

func (ms *messageService) CreateMessage(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	if strings.TrimSpace(input.Content) == "" && (input.AssetID == nil || *input.AssetID == "") {
		return nil, models.NewValidationError("a message requires content or an asset")
	}

	// System messages are emitted on behalf of the platform (member
	// joined, member left) and may outlive the author's membership.
	if !input.IsSystemMessage {
		isMember, err := ms.conversations.IsMember(ctx, input.ConversationID, input.AuthorID)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, models.ErrNotFound
		}
	}

	replyTo := input.ReplyToMessageID
	if replyTo != nil {
		rootID, err := ms.resolveThreadRoot(ctx, input.ConversationID, *replyTo)
		if err != nil {
			return nil, err
		}
		replyTo = &rootID
	}

	var content interface{}
	if input.Content != "" {
		content = input.Content
	}
	var assetID interface{}
	if input.AssetID != nil && *input.AssetID != "" {
		assetID = *input.AssetID
	}

	insert := psql.
		Insert("messages").
		Columns("conversation_id", "author_id", "content", "asset_id", "reply_to_message_id", "is_system_message", "created_at").
		Values(input.ConversationID, input.AuthorID, content, assetID, replyTo, input.IsSystemMessage, ms.clock.Now()).
		Suffix("RETURNING " + messageColumns)

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		ms.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	msg, err := scanMessage(ms.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		ms.log.Error().Err(err).Int64("conversation_id", input.ConversationID).Msg("error creating message")
		return nil, err
	}

	ms.log.Info().Int64("message_id", msg.ID).Int64("conversation_id", msg.ConversationID).Int64("author_id", msg.AuthorID).Msg("message created")
	return msg, nil
}

// resolveThreadRoot flattens reply-to-reply: a reply always attaches to the
// original thread root, so reply_to_message_id only ever points at roots.
func (ms *messageService) resolveThreadRoot(ctx context.Context, conversationID, targetID int64) (int64, error) {
	query := psql.
		Select("id", "reply_to_message_id").
		From("messages").
		Where(squirrel.And{
			squirrel.Eq{"id": targetID},
			squirrel.Eq{"conversation_id": conversationID},
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	var replyTo *int64
	err = ms.pool.QueryRow(ctx, sqlStr, args...).Scan(&id, &replyTo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.NewValidationError("reply target %d not found in conversation", targetID)
		}
		return 0, err
	}

	if replyTo != nil {
		return *replyTo, nil
	}
	return id, nil
}

// GetMessageByID hides messages in conversations the requester does not
// belong to behind the same not-found result as a nonexistent id.
func (ms *messageService) GetMessageByID(ctx context.Context, messageID, requestingUserID int64) (*models.Message, error) {
	query := psql.
		Select(messageColumns).
		From("messages").
		Where(squirrel.Eq{"id": messageID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	msg, err := scanMessage(ms.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		ms.log.Error().Err(err).Int64("message_id", messageID).Msg("error fetching message")
		return nil, err
	}

	isMember, err := ms.conversations.IsMember(ctx, msg.ConversationID, requestingUserID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, models.ErrNotFound
	}
	return msg, nil
}

func (ms *messageService) EditMessage(ctx context.Context, messageID, userID int64, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, models.NewValidationError("edited content must not be empty")
	}

	msg, err := ms.GetMessageByID(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.Deleted() {
		return nil, models.ErrNotFound
	}
	if msg.AuthorID != userID {
		return nil, models.ErrUnauthorized
	}
	if !editWindowOpen(ms.clock, msg.CreatedAt) {
		return nil, models.ErrEditWindowExpired
	}

	update := psql.
		Update("messages").
		Set("content", content).
		Set("edited_at", ms.clock.Now()).
		Where(squirrel.And{
			squirrel.Eq{"id": messageID},
			squirrel.Eq{"deleted_at": nil},
		}).
		Suffix("RETURNING " + messageColumns)

	sqlStr, args, err := update.ToSql()
	if err != nil {
		ms.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	updated, err := scanMessage(ms.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a race with a concurrent delete.
			return nil, models.ErrNotFound
		}
		ms.log.Error().Err(err).Int64("message_id", messageID).Msg("error editing message")
		return nil, err
	}

	ms.log.Info().Int64("message_id", messageID).Int64("user_id", userID).Msg("message edited")
	return updated, nil
}

// DeleteMessage soft-deletes: the row stays so threads, pins, and reactions
// keep a valid target, but content and asset are cleared for good. The
// returned message carries the conversation id so callers never need a
// second read.
func (ms *messageService) DeleteMessage(ctx context.Context, messageID, userID int64) (*models.Message, bool, error) {
	msg, err := ms.GetMessageByID(ctx, messageID, userID)
	if err != nil {
		return nil, false, err
	}
	if msg.Deleted() {
		return msg, false, nil
	}

	if msg.AuthorID != userID {
		isAdmin, err := ms.conversations.IsAdmin(ctx, msg.ConversationID, userID)
		if err != nil {
			return nil, false, err
		}
		if !isAdmin {
			return nil, false, models.ErrUnauthorized
		}
	}

	now := ms.clock.Now()
	update := psql.
		Update("messages").
		Set("content", nil).
		Set("asset_id", nil).
		Set("deleted_at", now).
		Where(squirrel.And{
			squirrel.Eq{"id": messageID},
			squirrel.Eq{"deleted_at": nil},
		})

	sqlStr, args, err := update.ToSql()
	if err != nil {
		ms.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, false, err
	}

	tag, err := ms.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		ms.log.Error().Err(err).Int64("message_id", messageID).Msg("error deleting message")
		return nil, false, err
	}

	deleted := tag.RowsAffected() > 0
	if deleted {
		msg.Content = nil
		msg.AssetID = nil
		msg.DeletedAt = &now
		ms.log.Info().Int64("message_id", messageID).Int64("user_id", userID).Msg("message deleted")
	}
	return msg, deleted, nil
}

// ListMessages pages newest-first with a stateless `before` cursor (the
// lowest message id of the previous page).
func (ms *messageService) ListMessages(ctx context.Context, conversationID, requestingUserID int64, limit int, before *int64) ([]models.Message, error) {
	isMember, err := ms.conversations.IsMember(ctx, conversationID, requestingUserID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, models.ErrNotFound
	}

	if limit < 1 || limit > 100 {
		limit = 50
	}

	query := psql.
		Select(messageColumns).
		From("messages").
		Where(squirrel.Eq{"conversation_id": conversationID}).
		OrderBy("id DESC").
		Limit(uint64(limit))

	if before != nil {
		query = query.Where(squirrel.Lt{"id": *before})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		ms.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	rows, err := ms.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		ms.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("error listing messages")
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (ms *messageService) AddReaction(ctx context.Context, messageID, userID int64, emoji string) (models.Reactions, error) {
	return ms.mutateReactions(ctx, messageID, userID, emoji, func(r models.Reactions) bool {
		return r.Add(emoji, userID)
	})
}

func (ms *messageService) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (models.Reactions, error) {
	return ms.mutateReactions(ctx, messageID, userID, emoji, func(r models.Reactions) bool {
		return r.Remove(emoji, userID)
	})
}

// mutateReactions applies a reaction change under a row lock so concurrent
// reactions to the same message never lose updates. A no-op change commits
// nothing and still reports success.
func (ms *messageService) mutateReactions(ctx context.Context, messageID, userID int64, emoji string, apply func(models.Reactions) bool) (models.Reactions, error) {
	if emoji == "" {
		return nil, models.NewValidationError("emoji is required")
	}

	tx, err := ms.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const query = `
        SELECT conversation_id, deleted_at, reactions
        FROM messages
        WHERE id = $1
        FOR UPDATE
    `
	var conversationID int64
	var deletedAt *time.Time
	var reactions models.Reactions
	err = tx.QueryRow(ctx, query, messageID).Scan(&conversationID, &deletedAt, &reactions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		ms.log.Error().Err(err).Int64("message_id", messageID).Msg("error fetching reactions")
		return nil, err
	}
	if deletedAt != nil {
		return nil, models.ErrNotFound
	}

	isMember, err := ms.conversations.IsMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, models.ErrNotFound
	}

	if reactions == nil {
		reactions = models.Reactions{}
	}
	if !apply(reactions) {
		return reactions, nil
	}

	update := psql.
		Update("messages").
		Set("reactions", reactions).
		Where(squirrel.Eq{"id": messageID})

	sqlStr, args, err := update.ToSql()
	if err != nil {
		ms.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		ms.log.Error().Err(err).Int64("message_id", messageID).Msg("error updating reactions")
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	ms.log.Info().Int64("message_id", messageID).Int64("user_id", userID).Str("emoji", emoji).Msg("reactions updated")
	return reactions, nil
}

// SearchMessages runs a full-text match scoped to conversations the user
// belongs to.
func (ms *messageService) SearchMessages(ctx context.Context, input SearchMessagesInput) ([]models.Message, error) {
	if len(strings.TrimSpace(input.Query)) < 2 {
		return nil, models.NewValidationError("search query must be at least 2 characters")
	}
	if input.Limit < 1 || input.Limit > 100 {
		input.Limit = 20
	}
	if input.Offset < 0 {
		input.Offset = 0
	}

	query := psql.
		Select(
			"m.id", "m.conversation_id", "m.author_id", "m.content", "m.asset_id",
			"m.reply_to_message_id", "m.is_system_message", "m.created_at", "m.edited_at",
			"m.deleted_at", "m.reactions").
		From("messages m").
		Join("conversation_members cm ON cm.conversation_id = m.conversation_id").
		Where(squirrel.Eq{"cm.user_id": input.UserID}).
		Where(squirrel.Eq{"m.deleted_at": nil}).
		Where(squirrel.Expr("m.search @@ websearch_to_tsquery('simple', ?)", input.Query)).
		OrderBy("m.id DESC").
		Limit(uint64(input.Limit)).
		Offset(uint64(input.Offset))

	if input.ConversationID != nil {
		query = query.Where(squirrel.Eq{"m.conversation_id": *input.ConversationID})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		ms.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	rows, err := ms.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		ms.log.Error().Err(err).Int64("user_id", input.UserID).Msg("error searching messages")
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// PinMessage is open to every member; pinning twice is a no-op returning
// the existing pin.
func (ms *messageService) PinMessage(ctx context.Context, conversationID, messageID, userID int64) (*models.Pin, error) {
	isMember, err := ms.conversations.IsMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, models.ErrNotFound
	}

	msg, err := ms.GetMessageByID(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, models.ErrNotFound
	}
	if msg.Deleted() {
		return nil, models.NewValidationError("cannot pin a deleted message")
	}

	insert := psql.
		Insert("pins").
		Columns("conversation_id", "message_id", "pinned_by", "pinned_at").
		Values(conversationID, messageID, userID, ms.clock.Now()).
		Suffix("ON CONFLICT (conversation_id, message_id) DO NOTHING")

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		ms.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}
	if _, err := ms.pool.Exec(ctx, sqlStr, args...); err != nil {
		ms.log.Error().Err(err).Int64("message_id", messageID).Msg("error pinning message")
		return nil, err
	}

	pinQuery := psql.
		Select("conversation_id", "message_id", "pinned_by", "pinned_at").
		From("pins").
		Where(squirrel.And{
			squirrel.Eq{"conversation_id": conversationID},
			squirrel.Eq{"message_id": messageID},
		})

	sqlStr, args, err = pinQuery.ToSql()
	if err != nil {
		return nil, err
	}

	var pin models.Pin
	err = ms.pool.QueryRow(ctx, sqlStr, args...).Scan(&pin.ConversationID, &pin.MessageID, &pin.PinnedBy, &pin.PinnedAt)
	if err != nil {
		ms.log.Error().Err(err).Int64("message_id", messageID).Msg("error fetching pin")
		return nil, err
	}

	ms.log.Info().Int64("conversation_id", conversationID).Int64("message_id", messageID).Int64("user_id", userID).Msg("message pinned")
	return &pin, nil
}

func (ms *messageService) UnpinMessage(ctx context.Context, conversationID, messageID, userID int64) (bool, error) {
	isMember, err := ms.conversations.IsMember(ctx, conversationID, userID)
	if err != nil {
		return false, err
	}
	if !isMember {
		return false, models.ErrNotFound
	}

	del := psql.
		Delete("pins").
		Where(squirrel.And{
			squirrel.Eq{"conversation_id": conversationID},
			squirrel.Eq{"message_id": messageID},
		})

	sqlStr, args, err := del.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := ms.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		ms.log.Error().Err(err).Int64("message_id", messageID).Msg("error unpinning message")
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListPins returns the newest pins, bounded regardless of how many the
// store holds.
func (ms *messageService) ListPins(ctx context.Context, conversationID, requestingUserID int64) ([]models.Pin, error) {
	isMember, err := ms.conversations.IsMember(ctx, conversationID, requestingUserID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, models.ErrNotFound
	}

	query := psql.
		Select(
			"p.conversation_id", "p.message_id", "p.pinned_by", "p.pinned_at",
			"m.id", "m.conversation_id", "m.author_id", "m.content", "m.asset_id",
			"m.reply_to_message_id", "m.is_system_message", "m.created_at", "m.edited_at",
			"m.deleted_at", "m.reactions").
		From("pins p").
		Join("messages m ON m.id = p.message_id").
		Where(squirrel.Eq{"p.conversation_id": conversationID}).
		OrderBy("p.pinned_at DESC").
		Limit(maxPinsReturned)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		ms.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	rows, err := ms.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		ms.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("error listing pins")
		return nil, err
	}
	defer rows.Close()

	var pins []models.Pin
	for rows.Next() {
		var pin models.Pin
		var msg models.Message
		err := rows.Scan(
			&pin.ConversationID, &pin.MessageID, &pin.PinnedBy, &pin.PinnedAt,
			&msg.ID, &msg.ConversationID, &msg.AuthorID, &msg.Content, &msg.AssetID,
			&msg.ReplyToMessageID, &msg.IsSystemMessage, &msg.CreatedAt, &msg.EditedAt,
			&msg.DeletedAt, &msg.Reactions)
		if err != nil {
			return nil, err
		}
		if msg.Reactions == nil {
			msg.Reactions = models.Reactions{}
		}
		pin.Message = &msg
		pins = append(pins, pin)
	}
	return pins, rows.Err()
}
