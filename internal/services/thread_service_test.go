package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FluxMessenger/server/internal/models"
)

type stubMessageStore struct {
	MessageService
	getFn func(ctx context.Context, messageID, userID int64) (*models.Message, error)
}

func (s *stubMessageStore) GetMessageByID(ctx context.Context, messageID, userID int64) (*models.Message, error) {
	return s.getFn(ctx, messageID, userID)
}

type stubMembership struct {
	ConversationService
	member bool
}

func (s *stubMembership) IsMember(context.Context, int64, int64) (bool, error) {
	return s.member, nil
}

func newThreadServiceForTest(member bool, getFn func(ctx context.Context, messageID, userID int64) (*models.Message, error)) *threadService {
	return &threadService{
		messages:      &stubMessageStore{getFn: getFn},
		conversations: &stubMembership{member: member},
		log:           zerolog.Nop(),
	}
}

func TestGetRootResolvesDeletedRoot(t *testing.T) {
	deletedAt := time.Now()
	ts := newThreadServiceForTest(true, func(context.Context, int64, int64) (*models.Message, error) {
		return &models.Message{ID: 5, ConversationID: 10, DeletedAt: &deletedAt}, nil
	})

	root, err := ts.getRoot(context.Background(), 10, 5, 1)
	require.NoError(t, err, "a soft-deleted root still anchors its replies")
	assert.True(t, root.Deleted())
	assert.Equal(t, int64(5), root.ID)
}

func TestGetRootHiddenFromNonMembers(t *testing.T) {
	ts := newThreadServiceForTest(false, func(context.Context, int64, int64) (*models.Message, error) {
		return &models.Message{ID: 5, ConversationID: 10}, nil
	})

	_, err := ts.getRoot(context.Background(), 10, 5, 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetRootRejectsForeignConversation(t *testing.T) {
	ts := newThreadServiceForTest(true, func(context.Context, int64, int64) (*models.Message, error) {
		return &models.Message{ID: 5, ConversationID: 11}, nil
	})

	_, err := ts.getRoot(context.Background(), 10, 5, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestThreadReplyStatsExcludesDeleted(t *testing.T) {
	sqlStr, args, err := threadReplyStats(5).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sqlStr, "COUNT(*)")
	assert.Contains(t, sqlStr, "deleted_at IS NULL", "soft-deleted replies never count")
	assert.Contains(t, sqlStr, "reply_to_message_id = $")
	assert.Equal(t, []interface{}{int64(5)}, args)
}
