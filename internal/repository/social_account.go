package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/postpilot/link-server-go/internal/model"
)

type SocialAccountRepository interface {
	FindByOwnerAndPlatform(ctx context.Context, userID, platform string) (*model.SocialAccount, error)
	FindByOwner(ctx context.Context, userID string) ([]*model.SocialAccount, error)
	Upsert(ctx context.Context, params model.UpsertSocialAccountParams) (*model.SocialAccount, error)
	ClearConnection(ctx context.Context, userID, platform string) (*model.SocialAccount, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SocialAccountRepository
}

// socialAccountDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type socialAccountDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type socialAccountRepo struct {
	db socialAccountDB
}

func NewSocialAccountRepository(db *sqlx.DB) SocialAccountRepository {
	return &socialAccountRepo{db: db}
}

func (r *socialAccountRepo) WithTx(tx *sqlx.Tx) SocialAccountRepository {
	return &socialAccountRepo{db: tx}
}

func (r *socialAccountRepo) FindByOwnerAndPlatform(ctx context.Context, userID, platform string) (*model.SocialAccount, error) {
	var account model.SocialAccount
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM social_accounts
		WHERE user_id = $1 AND platform = $2
	`, userID, platform)
	return HandleNotFound(&account, err)
}

func (r *socialAccountRepo) FindByOwner(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	var accounts []*model.SocialAccount
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM social_accounts
		WHERE user_id = $1
		ORDER BY platform ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Upsert creates or refreshes the record for (user, platform). The
// unique constraint makes this safe under concurrent completes: a
// double-click can never produce two rows.
func (r *socialAccountRepo) Upsert(ctx context.Context, params model.UpsertSocialAccountParams) (*model.SocialAccount, error) {
	var account model.SocialAccount
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO social_accounts (
			user_id, organization_id, platform, remote_id, remote_name,
			access_token, refresh_token, token_expires_at, connected, last_synced_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW(), $9)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			remote_id = EXCLUDED.remote_id,
			remote_name = EXCLUDED.remote_name,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			connected = TRUE,
			last_synced_at = NOW(),
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING *
	`, params.UserID, params.OrganizationID, params.Platform, params.RemoteID, params.RemoteName,
		params.AccessToken, params.RefreshToken, params.TokenExpiresAt, params.Metadata)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ClearConnection soft-disables the record: tokens are nulled and the
// connected flag cleared, but the row and its metadata are preserved.
func (r *socialAccountRepo) ClearConnection(ctx context.Context, userID, platform string) (*model.SocialAccount, error) {
	var account model.SocialAccount
	err := r.db.GetContext(ctx, &account, `
		UPDATE social_accounts SET
			access_token = NULL,
			refresh_token = NULL,
			token_expires_at = NULL,
			connected = FALSE,
			updated_at = $3
		WHERE user_id = $1 AND platform = $2
		RETURNING *
	`, userID, platform, time.Now())
	return HandleNotFound(&account, err)
}
