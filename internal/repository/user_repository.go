package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/shipping-auth/internal/model"
)

const userColumns = "id,name,email,phone,password_hash,role,is_verified," +
	"email_token_hash,email_token_expires,reset_token_hash,reset_token_expires,created_at,updated_at"

// UserRepo is the MySQL credential store. Every mutating method returns the
// affected row count so callers can tell "no matching row" from success.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u    model.User
		name sql.NullString
	)
	err := s.Scan(&u.ID, &name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.IsVerified,
		&u.EmailTokenHash, &u.EmailTokenExpires, &u.ResetTokenHash, &u.ResetTokenExpires,
		&u.CreatedAt, &u.UpdatedAt)
	u.Name = name.String
	return u, err
}

func (r *UserRepo) getOne(ctx context.Context, where string, args ...any) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ExistsByEmailOrPhone reports whether either value is already taken.
func (r *UserRepo) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE email=? OR phone=? LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)), phone).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create inserts a user and returns its ID. A duplicate email or phone
// surfaces as ErrConflict.
func (r *UserRepo) Create(ctx context.Context, nu model.NewUser) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, phone, password_hash, role, is_verified) VALUES (?,?,?,?,?,?)",
		nullable(nu.Name), strings.ToLower(strings.TrimSpace(nu.Email)), nullable(nu.Phone),
		nullable(nu.PasswordHash), nu.Role, nu.IsVerified)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "email=?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, "id=?", id)
}

// SetVerificationToken stores the digest of a fresh verification token,
// replacing any previous one.
func (r *UserRepo) SetVerificationToken(ctx context.Context, userID uint64, hash string, exp time.Time) (int64, error) {
	return r.exec(ctx,
		"UPDATE users SET email_token_hash=?, email_token_expires=? WHERE id=?",
		hash, exp.UTC(), userID)
}

// FindByVerificationTokenHash returns the user owning an unexpired
// verification token. Expiry is part of the lookup predicate.
func (r *UserRepo) FindByVerificationTokenHash(ctx context.Context, hash string, now time.Time) (model.User, error) {
	return r.getOne(ctx, "email_token_hash=? AND email_token_expires > ?", hash, now.UTC())
}

// ConsumeVerificationToken marks the owner verified and clears the token in
// the same statement that matches it. A second call with the same hash
// affects zero rows.
func (r *UserRepo) ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (int64, error) {
	return r.exec(ctx,
		"UPDATE users SET is_verified=1, email_token_hash=NULL, email_token_expires=NULL "+
			"WHERE email_token_hash=? AND email_token_expires > ?",
		hash, now.UTC())
}

// SetResetToken stores the digest of a fresh password reset token.
func (r *UserRepo) SetResetToken(ctx context.Context, userID uint64, hash string, exp time.Time) (int64, error) {
	return r.exec(ctx,
		"UPDATE users SET reset_token_hash=?, reset_token_expires=? WHERE id=?",
		hash, exp.UTC(), userID)
}

// FindByResetTokenHash returns the user owning an unexpired reset token.
func (r *UserRepo) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (model.User, error) {
	return r.getOne(ctx, "reset_token_hash=? AND reset_token_expires > ?", hash, now.UTC())
}

// UpdatePasswordByResetToken replaces the password hash and clears the
// reset token in one statement guarded by the token match and expiry.
func (r *UserRepo) UpdatePasswordByResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error) {
	return r.exec(ctx,
		"UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_token_expires=NULL "+
			"WHERE reset_token_hash=? AND reset_token_expires > ?",
		passwordHash, tokenHash, now.UTC())
}

// DeleteUnverifiedExpired removes accounts that never followed their
// verification link before it expired.
func (r *UserRepo) DeleteUnverifiedExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx,
		"DELETE FROM users WHERE is_verified=0 AND email_token_expires IS NOT NULL AND email_token_expires < ?",
		now.UTC())
}

// List returns users ordered by id.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Delete removes a user. Linked OAuth rows go with it (ON DELETE CASCADE).
func (r *UserRepo) Delete(ctx context.Context, id uint64) (int64, error) {
	return r.exec(ctx, "DELETE FROM users WHERE id=?", id)
}

func (r *UserRepo) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
