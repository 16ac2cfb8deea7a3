package services

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"FluxMessenger/server/internal/models"
)

// ReadStateService tracks per-member read cursors. Unread counts are
// computed on read, never stored.
type ReadStateService interface {
	SetLastRead(ctx context.Context, conversationID, userID, messageID int64) (bool, error)
	GetConversationReadStates(ctx context.Context, conversationID int64) (map[int64]models.ReadState, error)
	GetUnreadCount(ctx context.Context, conversationID, userID int64) (int, error)
}

// lastReadUpdate builds the monotonic cursor update: the row only changes
// when the stored cursor is unset or behind the new message id.
func lastReadUpdate(conversationID, userID, messageID int64) squirrel.UpdateBuilder {
	return psql.
		Update("conversation_members").
		Set("last_read_message_id", messageID).
		Set("last_read_at", squirrel.Expr("NOW()")).
		Where(squirrel.And{
			squirrel.Eq{"conversation_id": conversationID},
			squirrel.Eq{"user_id": userID},
			squirrel.Or{
				squirrel.Eq{"last_read_message_id": nil},
				squirrel.Lt{"last_read_message_id": messageID},
			},
		})
}

type readStateService struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewReadStateService(pool *pgxpool.Pool, log zerolog.Logger) *readStateService {
	return &readStateService{pool: pool, log: log}
}

// SetLastRead advances the member's cursor and reports whether it moved.
// The cursor is monotonic: an out-of-order call with an older message id
// leaves it where it is.
func (rs *readStateService) SetLastRead(ctx context.Context, conversationID, userID, messageID int64) (bool, error) {
	const memberQuery = `
        SELECT EXISTS (
            SELECT 1
            FROM conversation_members
            WHERE conversation_id = $1 AND user_id = $2
        )
    `
	var isMember bool
	if err := rs.pool.QueryRow(ctx, memberQuery, conversationID, userID).Scan(&isMember); err != nil {
		rs.log.Error().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("error checking membership")
		return false, err
	}
	if !isMember {
		return false, models.ErrNotFound
	}

	const messageQuery = `
        SELECT EXISTS (
            SELECT 1
            FROM messages
            WHERE id = $1 AND conversation_id = $2
        )
    `
	var inConversation bool
	if err := rs.pool.QueryRow(ctx, messageQuery, messageID, conversationID).Scan(&inConversation); err != nil {
		rs.log.Error().Err(err).Int64("message_id", messageID).Msg("error checking message")
		return false, err
	}
	if !inConversation {
		return false, models.ErrNotFound
	}

	sqlStr, args, err := lastReadUpdate(conversationID, userID, messageID).ToSql()
	if err != nil {
		rs.log.Error().Err(err).Msg("failed to build SQL query")
		return false, err
	}

	tag, err := rs.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		rs.log.Error().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("error updating read cursor")
		return false, err
	}

	updated := tag.RowsAffected() > 0
	if updated {
		rs.log.Info().Int64("conversation_id", conversationID).Int64("user_id", userID).Int64("last_read_message_id", messageID).Msg("read cursor advanced")
	}
	return updated, nil
}

func (rs *readStateService) GetConversationReadStates(ctx context.Context, conversationID int64) (map[int64]models.ReadState, error) {
	query := psql.
		Select("user_id", "last_read_message_id", "last_read_at").
		From("conversation_members").
		Where(squirrel.Eq{"conversation_id": conversationID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		rs.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	rows, err := rs.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		rs.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("error fetching read states")
		return nil, err
	}
	defer rows.Close()

	states := make(map[int64]models.ReadState)
	for rows.Next() {
		var state models.ReadState
		if err := rows.Scan(&state.UserID, &state.LastReadMessageID, &state.LastReadAt); err != nil {
			return nil, err
		}
		states[state.UserID] = state
	}
	return states, rows.Err()
}

// GetUnreadCount counts messages past the member's cursor authored by
// someone else, skipping soft-deleted rows.
func (rs *readStateService) GetUnreadCount(ctx context.Context, conversationID, userID int64) (int, error) {
	const query = `
        SELECT COUNT(*)
        FROM messages m
        JOIN conversation_members cm
          ON cm.conversation_id = m.conversation_id AND cm.user_id = $2
        WHERE m.conversation_id = $1
          AND m.author_id <> $2
          AND m.deleted_at IS NULL
          AND m.id > COALESCE(cm.last_read_message_id, 0)
    `

	var count int
	if err := rs.pool.QueryRow(ctx, query, conversationID, userID).Scan(&count); err != nil {
		rs.log.Error().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("error counting unread messages")
		return 0, err
	}
	return count, nil
}
