package services

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"FluxMessenger/server/internal/models"
)

// ThreadService is a view over the message store: threads are recomputed
// from the canonical message list, never stored as an aggregate.
type ThreadService interface {
	ListThreadMessages(ctx context.Context, conversationID, rootMessageID, userID int64, limit int) (*models.Thread, error)
	GetThreadSummary(ctx context.Context, conversationID, rootMessageID, userID int64) (*models.ThreadSummary, error)
}

type threadService struct {
	pool          *pgxpool.Pool
	messages      MessageService
	conversations ConversationService
	log           zerolog.Logger
}

func NewThreadService(pool *pgxpool.Pool, messages MessageService, conversations ConversationService, log zerolog.Logger) *threadService {
	return &threadService{
		pool:          pool,
		messages:      messages,
		conversations: conversations,
		log:           log,
	}
}

// getRoot resolves the thread root. A soft-deleted root still resolves so
// its surviving replies remain reachable; only a missing row or a
// non-member requester yields not-found.
func (ts *threadService) getRoot(ctx context.Context, conversationID, rootMessageID, userID int64) (*models.Message, error) {
	isMember, err := ts.conversations.IsMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, models.ErrNotFound
	}

	root, err := ts.messages.GetMessageByID(ctx, rootMessageID, userID)
	if err != nil {
		return nil, err
	}
	if root.ConversationID != conversationID {
		return nil, models.ErrNotFound
	}
	return root, nil
}

func (ts *threadService) ListThreadMessages(ctx context.Context, conversationID, rootMessageID, userID int64, limit int) (*models.Thread, error) {
	root, err := ts.getRoot(ctx, conversationID, rootMessageID, userID)
	if err != nil {
		return nil, err
	}

	if limit < 1 || limit > 200 {
		limit = 100
	}

	query := psql.
		Select(messageColumns).
		From("messages").
		Where(squirrel.Eq{"reply_to_message_id": rootMessageID}).
		OrderBy("id ASC").
		Limit(uint64(limit))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		ts.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	rows, err := ts.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		ts.log.Error().Err(err).Int64("root_message_id", rootMessageID).Msg("error listing thread messages")
		return nil, err
	}
	defer rows.Close()

	var replies []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		replies = append(replies, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Counted over the whole thread, not the fetched page, so the listing
	// and the summary always agree.
	replyCount, _, err := ts.countReplies(ctx, rootMessageID)
	if err != nil {
		return nil, err
	}

	return &models.Thread{
		RootMessage: root,
		Messages:    replies,
		ReplyCount:  replyCount,
	}, nil
}

// threadReplyStats builds the live-reply aggregate for a root. Soft-deleted
// replies never count.
func threadReplyStats(rootMessageID int64) squirrel.SelectBuilder {
	return psql.
		Select("COUNT(*)", "MAX(created_at)").
		From("messages").
		Where(squirrel.And{
			squirrel.Eq{"reply_to_message_id": rootMessageID},
			squirrel.Eq{"deleted_at": nil},
		})
}

func (ts *threadService) countReplies(ctx context.Context, rootMessageID int64) (int, *time.Time, error) {
	sqlStr, args, err := threadReplyStats(rootMessageID).ToSql()
	if err != nil {
		ts.log.Error().Err(err).Msg("failed to build SQL query")
		return 0, nil, err
	}

	var count int
	var lastReplyAt *time.Time
	if err := ts.pool.QueryRow(ctx, sqlStr, args...).Scan(&count, &lastReplyAt); err != nil {
		ts.log.Error().Err(err).Int64("root_message_id", rootMessageID).Msg("error counting replies")
		return 0, nil, err
	}
	return count, lastReplyAt, nil
}

// GetThreadSummary counts only non-deleted replies, so deleting a reply
// shrinks the reply count.
func (ts *threadService) GetThreadSummary(ctx context.Context, conversationID, rootMessageID, userID int64) (*models.ThreadSummary, error) {
	if _, err := ts.getRoot(ctx, conversationID, rootMessageID, userID); err != nil {
		return nil, err
	}

	replyCount, lastReplyAt, err := ts.countReplies(ctx, rootMessageID)
	if err != nil {
		return nil, err
	}

	const participantsQuery = `
        SELECT DISTINCT author_id
        FROM messages
        WHERE reply_to_message_id = $1 AND deleted_at IS NULL
        ORDER BY author_id
    `
	rows, err := ts.pool.Query(ctx, participantsQuery, rootMessageID)
	if err != nil {
		ts.log.Error().Err(err).Int64("root_message_id", rootMessageID).Msg("error fetching thread participants")
		return nil, err
	}
	defer rows.Close()

	participantIDs := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		participantIDs = append(participantIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.ThreadSummary{
		RootMessageID:  rootMessageID,
		ReplyCount:     replyCount,
		LastReplyAt:    lastReplyAt,
		ParticipantIDs: participantIDs,
	}, nil
}
