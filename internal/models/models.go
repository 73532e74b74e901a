package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// User is the account row. A nil PasswordHash marks an account created by
// federated sign-in; such accounts never pass a password check.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"      json:"id"`
	Email        string     `gorm:"uniqueIndex;not null"      json:"email"`
	Username     string     `gorm:"uniqueIndex;not null"      json:"username"`
	Name         string     `gorm:"not null;default:''"       json:"name"`
	ProfileImage string     `gorm:"not null;default:''"       json:"profileImage"`
	BannerImage  string     `gorm:"not null;default:''"       json:"bannerImage"`
	PasswordHash *string    `                                 json:"-"`
	Role         string     `gorm:"not null;default:'user'"   json:"role"`
	IsBanned     bool       `gorm:"not null;default:false"    json:"isBanned"`
	BanReason    *string    `                                 json:"banReason,omitempty"`
	BannedUntil  *time.Time `                                 json:"bannedUntil,omitempty"`
	CreatedAt    time.Time  `                                 json:"createdAt"`
	UpdatedAt    time.Time  `                                 json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Identity is what the rest of the request sees of an authenticated user.
type Identity struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	ProfileImage string    `json:"profileImage"`
	BannerImage  string    `json:"bannerImage"`
	Role         string    `json:"role"`
}

func (u *User) Identity() Identity {
	return Identity{
		ID:           u.ID,
		Name:         u.Name,
		Username:     u.Username,
		Email:        u.Email,
		ProfileImage: u.ProfileImage,
		BannerImage:  u.BannerImage,
		Role:         u.Role,
	}
}

// RefreshToken is one ledger entry per issued refresh token.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"              json:"id"`
	JTI       string    `gorm:"uniqueIndex;not null"    json:"jti"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	ExpiresAt time.Time `gorm:"index;not null"          json:"expires_at"`
	Revoked   bool      `gorm:"not null;default:false"  json:"revoked"`
	CreatedAt time.Time `                               json:"created_at"`
}
