package entity

import "time"

// User is a registered account that authenticates via one-time email codes.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     string    `gorm:"size:100;not null;uniqueIndex" json:"email"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for GORM.
func (User) TableName() string {
	return "users"
}
