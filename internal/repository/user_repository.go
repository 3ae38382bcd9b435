package repository

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// UserRepository is the read-only view of identity records the ticket core relies on.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type userRepository struct {
	db DBTX
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `
        SELECT user_id, username, email, role, is_verified, status, created_at
        FROM users WHERE user_id=$1`

	var user domain.User
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.IsVerified,
		&user.Status,
		&user.CreatedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &user, nil
}
