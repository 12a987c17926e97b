package entity

import "time"

// AuthCode is the single mutable code slot a user's current login code occupies.
// A user's row is reused across resets: the code and expiry are overwritten in
// place instead of inserting a fresh row, so at most one row per user is ever
// live. The email is denormalized onto the row for cleanup-by-email operations.
type AuthCode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Email     string    `gorm:"size:100;not null;index" json:"email"`
	Code      string    `gorm:"size:16;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	// Used is nullable: legacy rows may carry NULL, which counts as not used.
	Used      *bool     `json:"used,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the table name for GORM.
func (AuthCode) TableName() string {
	return "auth_codes"
}

// IsUsed reports whether the code has been consumed. NULL counts as not used.
func (a *AuthCode) IsUsed() bool {
	return a.Used != nil && *a.Used
}

// IsExpired reports whether the validity window has passed at the given instant.
func (a *AuthCode) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// IsLive reports whether the code is still authoritative: not consumed and not expired.
func (a *AuthCode) IsLive(now time.Time) bool {
	return !a.IsUsed() && !a.IsExpired(now)
}
