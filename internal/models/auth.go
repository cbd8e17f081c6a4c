package models

import "time"

// User is an account holder. Exactly one User per household has
// IsOwner set; the owner is the account created during first-run setup
// and is the only account that can register new devices and manage
// permissions.
type User struct {
	ID           UserID    `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	PINHash      *string   `db:"pin_hash" json:"-"`
	IsOwner      bool      `db:"is_owner" json:"is_owner"`
	Permissions  Permissions `db:"-" json:"permissions"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Permissions gates what a non-owner user may do. The owner account
// always behaves as if every field were true regardless of what's
// stored, so it never needs its own row.
type Permissions struct {
	CanStream    bool `db:"can_stream" json:"can_stream"`
	CanDownload  bool `db:"can_download" json:"can_download"`
	CanManage    bool `db:"can_manage" json:"can_manage"`
	MaxRating    *string `db:"max_rating" json:"max_rating,omitempty"`
}

// Device is a trusted client registered to a User. Device trust is what
// lets a device log in with a short PIN instead of the account
// password: the device itself already proved possession of a valid
// refresh token once, during the original password login.
type Device struct {
	ID           DeviceID  `db:"id" json:"id"`
	UserID       UserID    `db:"user_id" json:"user_id"`
	Name         string    `db:"name" json:"name"`
	PINHash      *string   `db:"pin_hash" json:"-"`
	FailedPINAttempts int  `db:"failed_pin_attempts" json:"-"`
	LockedUntil  *time.Time `db:"locked_until" json:"-"`
	LastSeenAt   time.Time `db:"last_seen_at" json:"last_seen_at"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
}

// Locked reports whether the device's PIN is temporarily locked out.
func (d Device) Locked(now time.Time) bool {
	return d.LockedUntil != nil && now.Before(*d.LockedUntil)
}

// MaxPINAttempts is the number of consecutive failed PIN attempts
// before a device is locked out.
const MaxPINAttempts = 5

// PINLockoutDuration is how long a device stays locked after exceeding
// MaxPINAttempts.
const PINLockoutDuration = 5 * time.Minute

// AuthToken is the server-side record backing an issued refresh token.
// The access token itself is a signed, stateless JWT and is never
// stored; only the opaque refresh token is persisted, so that logout
// and device revocation can actually take the token away.
type AuthToken struct {
	ID        UserID    `db:"id" json:"-"`
	UserID    UserID    `db:"user_id" json:"-"`
	DeviceID  DeviceID  `db:"device_id" json:"-"`
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"-"`
}

// Revoked reports whether the token has been explicitly revoked or has
// expired.
func (t AuthToken) Revoked(now time.Time) bool {
	return t.RevokedAt != nil || now.After(t.ExpiresAt)
}
