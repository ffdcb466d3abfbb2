package models

import (
	"schoolchat/backend/internal/config"
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is the read model of a platform account. Accounts are managed by the
// user service; the chat backend only needs identity, role and contact details.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Email          string    `gorm:"size:190;uniqueIndex;not null" json:"email"`
	Name           string    `gorm:"size:120" json:"name"`
	RoleID         int       `gorm:"not null;index" json:"role_id"`
	Language       string    `gorm:"size:8;default:es" json:"language"`
	TelegramChatID int64     `gorm:"index" json:"-"`
	PushToken      string    `gorm:"size:255" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (u *User) IsStudent() bool { return u.RoleID == config.RoleStudent }
func (u *User) IsTeacher() bool { return u.RoleID == config.RoleTeacher }
func (u *User) IsAdmin() bool   { return u.RoleID == config.RoleAdmin }

// BeforeCreate normalizes the email and fills in the default language.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Language == "" {
		u.Language = "es"
	}
	return
}
