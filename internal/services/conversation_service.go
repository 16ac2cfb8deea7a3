package services

import (
	"context"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"FluxMessenger/server/internal/models"
)

type CreateConversationInput struct {
	MemberIDs      []int64 `json:"member_ids"`
	IsGroup        bool    `json:"is_group"`
	Name           string  `json:"name"`
	ProjectID      *int64  `json:"project_id"`
	OrganizationID *int64  `json:"organization_id"`
}

type ConversationService interface {
	CreateConversation(ctx context.Context, creatorID int64, input CreateConversationInput) (*models.Conversation, error)
	GetConversationByID(ctx context.Context, conversationID, requestingUserID int64) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, conversationID, requestingUserID int64, patch models.ConversationPatch) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int64, limit, offset int, projectID *int64) ([]models.ConversationListEntry, error)
	AddMember(ctx context.Context, conversationID, actorID, userID int64) (*models.Member, error)
	RemoveMember(ctx context.Context, conversationID, actorID, userID int64) (int64, error)
	GetMembers(ctx context.Context, conversationID int64) ([]models.Member, error)
	GetMemberIDs(ctx context.Context, conversationID int64) ([]int64, error)
	IsMember(ctx context.Context, conversationID, userID int64) (bool, error)
	IsAdmin(ctx context.Context, conversationID, userID int64) (bool, error)
}

type conversationService struct {
	pool       *pgxpool.Pool
	users      UserService
	readStates ReadStateService
	clock      clockwork.Clock
	log        zerolog.Logger
}

func NewConversationService(pool *pgxpool.Pool, users UserService, readStates ReadStateService, clock clockwork.Clock, log zerolog.Logger) *conversationService {
	return &conversationService{
		pool:       pool,
		users:      users,
		readStates: readStates,
		clock:      clock,
		log:        log,
	}
}

// validateNewConversation checks the shape of a create request before any
// row is written. Exported rules live here so the boundary cases are
// testable without a database.
func validateNewConversation(creatorID int64, input CreateConversationInput) error {
	seen := map[int64]struct{}{creatorID: {}}
	for _, id := range input.MemberIDs {
		if id == creatorID {
			continue
		}
		if _, dup := seen[id]; dup {
			return models.NewValidationError("duplicate member id %d", id)
		}
		seen[id] = struct{}{}
	}
	others := len(seen) - 1

	if input.IsGroup {
		if input.Name == "" {
			return models.NewValidationError("a group conversation requires a name")
		}
		if others < 1 {
			return models.NewValidationError("a group conversation requires at least one member besides the creator")
		}
		return nil
	}

	if others != 1 {
		return models.NewValidationError("a direct conversation has exactly two members")
	}
	return nil
}

func (cs *conversationService) CreateConversation(ctx context.Context, creatorID int64, input CreateConversationInput) (*models.Conversation, error) {
	if err := validateNewConversation(creatorID, input); err != nil {
		return nil, err
	}

	memberIDs := append([]int64{creatorID}, input.MemberIDs...)
	ok, err := cs.users.AllExist(ctx, memberIDs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewValidationError("member ids must reference existing users")
	}

	var name interface{}
	if input.Name != "" {
		name = input.Name
	}

	// Conversation and member rows commit together: a conversation must
	// never exist without its membership.
	tx, err := cs.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	insert := psql.
		Insert("conversations").
		Columns("organization_id", "project_id", "name", "is_group", "created_by", "created_at").
		Values(input.OrganizationID, input.ProjectID, name, input.IsGroup, creatorID, cs.clock.Now()).
		Suffix("RETURNING id, created_at")

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		cs.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	conv := models.Conversation{
		OrganizationID: input.OrganizationID,
		ProjectID:      input.ProjectID,
		Name:           input.Name,
		IsGroup:        input.IsGroup,
		CreatedBy:      creatorID,
	}
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&conv.ID, &conv.CreatedAt); err != nil {
		cs.log.Error().Err(err).Msg("error creating conversation")
		return nil, err
	}

	memberInsert := psql.
		Insert("conversation_members").
		Columns("conversation_id", "user_id", "role")
	added := map[int64]struct{}{}
	for _, id := range memberIDs {
		if _, dup := added[id]; dup {
			continue
		}
		added[id] = struct{}{}
		role := models.RoleMember
		if id == creatorID {
			role = models.RoleAdmin
		}
		memberInsert = memberInsert.Values(conv.ID, id, role)
	}

	sqlStr, args, err = memberInsert.ToSql()
	if err != nil {
		cs.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		cs.log.Error().Err(err).Int64("conversation_id", conv.ID).Msg("error adding members")
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	members, err := cs.GetMembers(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Members = members

	cs.log.Info().Int64("conversation_id", conv.ID).Int64("creator_id", creatorID).Bool("is_group", conv.IsGroup).Msg("conversation created")
	return &conv, nil
}

// GetConversationByID returns not-found for non-members so existence is
// never revealed to outsiders.
func (cs *conversationService) GetConversationByID(ctx context.Context, conversationID, requestingUserID int64) (*models.Conversation, error) {
	isMember, err := cs.IsMember(ctx, conversationID, requestingUserID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, models.ErrNotFound
	}

	conv, err := cs.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	members, err := cs.GetMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Members = members
	return conv, nil
}

func (cs *conversationService) getConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	query := psql.
		Select("id", "organization_id", "project_id", "COALESCE(name, '')", "is_group", "created_by", "created_at").
		From("conversations").
		Where(squirrel.Eq{"id": conversationID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		cs.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	var conv models.Conversation
	err = cs.pool.QueryRow(ctx, sqlStr, args...).Scan(
		&conv.ID, &conv.OrganizationID, &conv.ProjectID, &conv.Name, &conv.IsGroup, &conv.CreatedBy, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		cs.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("error fetching conversation")
		return nil, err
	}
	return &conv, nil
}

func (cs *conversationService) UpdateConversation(ctx context.Context, conversationID, requestingUserID int64, patch models.ConversationPatch) (*models.Conversation, error) {
	isMember, err := cs.IsMember(ctx, conversationID, requestingUserID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, models.ErrNotFound
	}

	isAdmin, err := cs.IsAdmin(ctx, conversationID, requestingUserID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, models.ErrUnauthorized
	}

	conv, err := cs.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	name := conv.Name
	if patch.Name != nil {
		name = *patch.Name
	}
	isGroup := conv.IsGroup
	if patch.IsGroup != nil {
		isGroup = *patch.IsGroup
	}

	if isGroup && name == "" {
		return nil, models.NewValidationError("a group conversation requires a name")
	}
	if !isGroup {
		memberIDs, err := cs.GetMemberIDs(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if len(memberIDs) != 2 {
			return nil, models.NewValidationError("a direct conversation has exactly two members")
		}
	}

	var nameVal interface{}
	if name != "" {
		nameVal = name
	}
	update := psql.
		Update("conversations").
		Set("name", nameVal).
		Set("is_group", isGroup).
		Where(squirrel.Eq{"id": conversationID})

	sqlStr, args, err := update.ToSql()
	if err != nil {
		cs.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}
	if _, err := cs.pool.Exec(ctx, sqlStr, args...); err != nil {
		cs.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("error updating conversation")
		return nil, err
	}

	conv.Name = name
	conv.IsGroup = isGroup
	cs.log.Info().Int64("conversation_id", conversationID).Msg("conversation updated")
	return conv, nil
}

func (cs *conversationService) ListConversationsForUser(ctx context.Context, userID int64, limit, offset int, projectID *int64) ([]models.ConversationListEntry, error) {
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := psql.
		Select(
			"c.id", "c.organization_id", "c.project_id", "COALESCE(c.name, '')", "c.is_group", "c.created_by", "c.created_at",
			"last_msg.content AS last_message_preview",
			"COALESCE(last_msg.created_at, c.created_at) AS last_activity_at").
		From("conversations c").
		Join("conversation_members cm ON cm.conversation_id = c.id").
		LeftJoin("messages last_msg ON last_msg.conversation_id = c.id AND last_msg.id = (" +
			"SELECT MAX(id) FROM messages WHERE conversation_id = c.id AND deleted_at IS NULL)").
		Where(squirrel.Eq{"cm.user_id": userID}).
		OrderBy("last_activity_at DESC", "c.id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	if projectID != nil {
		query = query.Where(squirrel.Eq{"c.project_id": *projectID})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		cs.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	rows, err := cs.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		cs.log.Error().Err(err).Int64("user_id", userID).Msg("error listing conversations")
		return nil, err
	}
	defer rows.Close()

	var entries []models.ConversationListEntry
	for rows.Next() {
		var entry models.ConversationListEntry
		err := rows.Scan(
			&entry.ID, &entry.OrganizationID, &entry.ProjectID, &entry.Name, &entry.IsGroup,
			&entry.CreatedBy, &entry.CreatedAt, &entry.LastMessagePreview, &entry.LastActivityAt)
		if err != nil {
			cs.log.Error().Err(err).Msg("error scanning conversation row")
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		count, err := cs.readStates.GetUnreadCount(ctx, entries[i].ID, userID)
		if err != nil {
			cs.log.Error().Err(err).Int64("conversation_id", entries[i].ID).Msg("error getting unread count")
			continue
		}
		entries[i].UnreadCount = count
	}

	return entries, nil
}

func (cs *conversationService) AddMember(ctx context.Context, conversationID, actorID, userID int64) (*models.Member, error) {
	isMember, err := cs.IsMember(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, models.ErrNotFound
	}

	isAdmin, err := cs.IsAdmin(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, models.ErrUnauthorized
	}

	conv, err := cs.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, models.NewValidationError("cannot add members to a direct conversation")
	}

	if _, err := cs.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewValidationError("user %d does not exist", userID)
		}
		return nil, err
	}

	insert := psql.
		Insert("conversation_members").
		Columns("conversation_id", "user_id", "role").
		Values(conversationID, userID, models.RoleMember).
		Suffix("ON CONFLICT (conversation_id, user_id) DO NOTHING")

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		cs.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}
	if _, err := cs.pool.Exec(ctx, sqlStr, args...); err != nil {
		cs.log.Error().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("error adding member")
		return nil, err
	}

	member, err := cs.getMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	cs.log.Info().Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("member added")
	return member, nil
}

// validateMemberRemoval applies the membership policy before any row is
// deleted. A direct conversation keeps both members for life; a group must
// retain at least one admin.
func validateMemberRemoval(conv *models.Conversation, target *models.Member, adminCount int) error {
	if !conv.IsGroup {
		return models.NewValidationError("cannot remove members from a direct conversation")
	}
	if target != nil && target.Role == models.RoleAdmin && adminCount <= 1 {
		return models.NewValidationError("cannot remove the last admin of a group conversation")
	}
	return nil
}

// RemoveMember is idempotent: removing an absent member reports zero rows,
// not an error.
func (cs *conversationService) RemoveMember(ctx context.Context, conversationID, actorID, userID int64) (int64, error) {
	isMember, err := cs.IsMember(ctx, conversationID, actorID)
	if err != nil {
		return 0, err
	}
	if !isMember {
		return 0, models.ErrNotFound
	}

	if actorID != userID {
		isAdmin, err := cs.IsAdmin(ctx, conversationID, actorID)
		if err != nil {
			return 0, err
		}
		if !isAdmin {
			return 0, models.ErrUnauthorized
		}
	}

	conv, err := cs.getConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}

	var target *models.Member
	admins := 0
	if conv.IsGroup {
		target, err = cs.getMember(ctx, conversationID, userID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return 0, err
		}
		if target != nil && target.Role == models.RoleAdmin {
			admins, err = cs.countAdmins(ctx, conversationID)
			if err != nil {
				return 0, err
			}
		}
	}
	if err := validateMemberRemoval(conv, target, admins); err != nil {
		return 0, err
	}

	del := psql.
		Delete("conversation_members").
		Where(squirrel.And{
			squirrel.Eq{"conversation_id": conversationID},
			squirrel.Eq{"user_id": userID},
		})

	sqlStr, args, err := del.ToSql()
	if err != nil {
		cs.log.Error().Err(err).Msg("failed to build SQL query")
		return 0, err
	}

	tag, err := cs.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		cs.log.Error().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("error removing member")
		return 0, err
	}

	cs.log.Info().Int64("conversation_id", conversationID).Int64("user_id", userID).Int64("removed", tag.RowsAffected()).Msg("member removed")
	return tag.RowsAffected(), nil
}

func (cs *conversationService) GetMembers(ctx context.Context, conversationID int64) ([]models.Member, error) {
	query := psql.
		Select("conversation_id", "user_id", "role", "joined_at", "last_read_message_id", "last_read_at", "muted_at").
		From("conversation_members").
		Where(squirrel.Eq{"conversation_id": conversationID}).
		OrderBy("joined_at", "user_id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		cs.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	rows, err := cs.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		cs.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("error fetching members")
		return nil, err
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		err := rows.Scan(&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadMessageID, &m.LastReadAt, &m.MutedAt)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (cs *conversationService) GetMemberIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	query := psql.
		Select("user_id").
		From("conversation_members").
		Where(squirrel.Eq{"conversation_id": conversationID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := cs.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		cs.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("error fetching member ids")
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (cs *conversationService) getMember(ctx context.Context, conversationID, userID int64) (*models.Member, error) {
	query := psql.
		Select("conversation_id", "user_id", "role", "joined_at", "last_read_message_id", "last_read_at", "muted_at").
		From("conversation_members").
		Where(squirrel.And{
			squirrel.Eq{"conversation_id": conversationID},
			squirrel.Eq{"user_id": userID},
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var m models.Member
	err = cs.pool.QueryRow(ctx, sqlStr, args...).Scan(
		&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadMessageID, &m.LastReadAt, &m.MutedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (cs *conversationService) countAdmins(ctx context.Context, conversationID int64) (int, error) {
	query := psql.
		Select("COUNT(*)").
		From("conversation_members").
		Where(squirrel.And{
			squirrel.Eq{"conversation_id": conversationID},
			squirrel.Eq{"role": models.RoleAdmin},
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	if err := cs.pool.QueryRow(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (cs *conversationService) IsMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1
            FROM conversation_members
            WHERE conversation_id = $1 AND user_id = $2
        )
    `

	var exists bool
	if err := cs.pool.QueryRow(ctx, query, conversationID, userID).Scan(&exists); err != nil {
		cs.log.Error().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("error checking membership")
		return false, err
	}
	return exists, nil
}

func (cs *conversationService) IsAdmin(ctx context.Context, conversationID, userID int64) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1
            FROM conversation_members
            WHERE conversation_id = $1 AND user_id = $2 AND role = 'admin'
        )
    `

	var exists bool
	if err := cs.pool.QueryRow(ctx, query, conversationID, userID).Scan(&exists); err != nil {
		cs.log.Error().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("error checking admin role")
		return false, err
	}
	return exists, nil
}
