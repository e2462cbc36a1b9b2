package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/postpilot/link-server-go/internal/model"
)

// UserRepository is the read-only identity contract. User records are
// owned by the surrounding application; this service only resolves the
// owner of a completing handshake.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, email, organization_id, created_at FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}
