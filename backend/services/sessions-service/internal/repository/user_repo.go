package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"chargepark/backend/services/sessions-service/internal/models"
)

var userColumns = []string{
	"id", "email", "status", "violation_count", "violation_log", "ban_reason", "banned_at", "updated_at",
}

// UserRepository reads users and writes their violation state.
type UserRepository struct {
	base
}

// NewUserRepository returns repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{base{db: db}}
}

// GetByID returns user by id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.get(ctx, psql.Select(userColumns...).From("users").Where(sq.Eq{"id": id}))
}

// GetForUpdate returns user by id and locks the row until the transaction ends.
func (r *UserRepository) GetForUpdate(ctx context.Context, id int64) (*models.User, error) {
	return r.get(ctx, psql.Select(userColumns...).From("users").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
}

// UpdateViolationState writes status, counter, log and ban fields.
func (r *UserRepository) UpdateViolationState(ctx context.Context, user *models.User) error {
	affected, err := r.execAffected(ctx, psql.Update("users").
		Set("status", string(user.Status)).
		Set("violation_count", user.ViolationCount).
		Set("violation_log", user.ViolationLog).
		Set("ban_reason", user.BanReason).
		Set("banned_at", user.BannedAt).
		Set("updated_at", user.UpdatedAt).
		Where(sq.Eq{"id": user.ID}))
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) get(ctx context.Context, builder sq.SelectBuilder) (*models.User, error) {
	row, err := r.queryRow(ctx, builder)
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Status,
		&u.ViolationCount,
		&u.ViolationLog,
		&u.BanReason,
		&u.BannedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}
