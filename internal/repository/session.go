package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/postpilot/link-server-go/internal/model"
)

// AppSessionRepository validates authenticated application sessions.
// Sessions are issued by the surrounding product; this service only
// reads them and sweeps expired rows.
type AppSessionRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.AppSession, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type appSessionRepo struct {
	db *sqlx.DB
}

func NewAppSessionRepository(db *sqlx.DB) AppSessionRepository {
	return &appSessionRepo{db: db}
}

func (r *appSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.AppSession, error) {
	var session model.AppSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM app_sessions
		WHERE token_hash = $1 AND expires_at > NOW()
	`, tokenHash)
	return HandleNotFound(&session, err)
}

func (r *appSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM app_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
