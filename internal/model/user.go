package model

import (
	"database/sql"
	"time"
)

// Role names stored in users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account as stored in the `users` table. Each field
// corresponds to a column. Handlers expose users through their own
// response types and never serialise this struct directly, since it
// carries the password hash and the emailed token digests.
//
// Fields:
//
//	ID                – primary key identifier of the user.
//	Name              – optional display name.
//	Email             – unique, lower-cased email address.
//	Phone             – unique phone number in +389… form (NULL for OAuth-provisioned users).
//	PasswordHash      – bcrypt hash; NULL marks an OAuth-only account.
//	Role              – role name (user or admin).
//	IsVerified        – set once the email link has been followed.
//	EmailTokenHash    – SHA-256 hex of the outstanding verification token.
//	EmailTokenExpires – expiry of that token.
//	ResetTokenHash    – SHA-256 hex of the outstanding password reset token.
//	ResetTokenExpires – expiry of that token.
type User struct {
	ID                uint64         // users.id
	Name              string         // users.name
	Email             string         // users.email
	Phone             sql.NullString // users.phone
	PasswordHash      sql.NullString // users.password_hash
	Role              string         // users.role
	IsVerified        bool           // users.is_verified
	EmailTokenHash    sql.NullString // users.email_token_hash
	EmailTokenExpires sql.NullTime   // users.email_token_expires
	ResetTokenHash    sql.NullString // users.reset_token_hash
	ResetTokenExpires sql.NullTime   // users.reset_token_expires
	CreatedAt         time.Time      // users.created_at
	UpdatedAt         time.Time      // users.updated_at
}

// HasPassword reports whether the account can log in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash.Valid && u.PasswordHash.String != ""
}

// NewUser carries the columns supplied when a user row is inserted. An
// empty PasswordHash is stored as NULL.
type NewUser struct {
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         string
	IsVerified   bool
}

// OAuthAccount models a row in the `oauth_users` table linking an external
// identity to a local user. (Provider, Subject) is unique.
type OAuthAccount struct {
	ID        uint64    // oauth_users.id
	UserID    uint64    // oauth_users.user_id
	Provider  string    // oauth_users.provider (google, facebook)
	Subject   string    // oauth_users.subject, the provider's stable user id
	CreatedAt time.Time // oauth_users.created_at
}
