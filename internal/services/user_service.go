package services

import (
	"context"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"FluxMessenger/server/internal/models"
)

// UserService reads the user directory owned by the surrounding platform.
// This service never creates or mutates users; it only needs to know that
// member ids are real.
type UserService interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error)
	AllExist(ctx context.Context, ids []int64) (bool, error)
}

type userService struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewUserService(pool *pgxpool.Pool, log zerolog.Logger) *userService {
	return &userService{pool: pool, log: log}
}

func (us *userService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := psql.
		Select("id", "username", "email", "created_at").
		From("users").
		Where(squirrel.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		us.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	var user models.User
	err = us.pool.QueryRow(ctx, sqlStr, args...).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		us.log.Error().Err(err).Int64("user_id", id).Msg("error fetching user")
		return nil, err
	}

	return &user, nil
}

func (us *userService) GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := psql.
		Select("id", "username", "email", "created_at").
		From("users").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		us.log.Error().Err(err).Msg("failed to build SQL query")
		return nil, err
	}

	rows, err := us.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		us.log.Error().Err(err).Msg("error fetching users")
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (us *userService) AllExist(ctx context.Context, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	query := psql.
		Select("COUNT(DISTINCT id)").
		From("users").
		Where(squirrel.Eq{"id": ids})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		us.log.Error().Err(err).Msg("failed to build SQL query")
		return false, err
	}

	distinct := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		distinct[id] = struct{}{}
	}

	var count int
	if err := us.pool.QueryRow(ctx, sqlStr, args...).Scan(&count); err != nil {
		us.log.Error().Err(err).Msg("error counting users")
		return false, err
	}

	return count == len(distinct), nil
}
