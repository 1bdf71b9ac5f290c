package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/shipping-auth/internal/model"
)

// OAuthRepo persists links between provider identities and local users.
type OAuthRepo struct{ DB *sql.DB }

func NewOAuthRepo(db *sql.DB) *OAuthRepo { return &OAuthRepo{DB: db} }

// FindUserIDByLink returns the user linked to (provider, subject).
func (r *OAuthRepo) FindUserIDByLink(ctx context.Context, provider, subject string) (uint64, error) {
	var id uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM oauth_users WHERE provider=? AND subject=? LIMIT 1",
		provider, subject).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

// Link attaches a provider identity to an existing user.
func (r *OAuthRepo) Link(ctx context.Context, userID uint64, provider, subject string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO oauth_users (user_id, provider, subject) VALUES (?,?,?)",
		userID, provider, subject)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// ProvisionExternal creates a user and its provider link in one
// transaction. The user row is inserted verified and without a password.
func (r *OAuthRepo) ProvisionExternal(ctx context.Context, nu model.NewUser, provider, subject string) (id uint64, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (name, email, phone, password_hash, role, is_verified) VALUES (?,?,NULL,NULL,?,1)",
		nullable(nu.Name), strings.ToLower(strings.TrimSpace(nu.Email)), nu.Role)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx,
		"INSERT INTO oauth_users (user_id, provider, subject) VALUES (?,?,?)",
		lastID, provider, subject); err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return uint64(lastID), nil
}
