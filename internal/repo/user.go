package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/campus_events/internal/models"
)

// CreateUserIfNotExists inserts u unless an account with the same email is
// already present. The unique index on email backs this up under races.
func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) error {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", u.Email).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrUserAlreadyExist
	}
	return r.DB.WithContext(ctx).Create(u).Error
}

func (r *GormRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) SetBan(ctx context.Context, id uuid.UUID, reason string, until *time.Time) error {
	var reasonVal *string
	if reason != "" {
		reasonVal = &reason
	}
	return r.updateUser(ctx, id, map[string]any{
		"is_banned":    true,
		"ban_reason":   reasonVal,
		"banned_until": until,
	})
}

func (r *GormRepo) ClearBan(ctx context.Context, id uuid.UUID) error {
	return r.updateUser(ctx, id, map[string]any{
		"is_banned":    false,
		"ban_reason":   nil,
		"banned_until": nil,
	})
}

func (r *GormRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updateUser(ctx, id, map[string]any{"password_hash": hash})
}

func (r *GormRepo) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	return r.updateUser(ctx, id, map[string]any{"role": role})
}

// FillProfileGaps copies provider data onto u only where the stored value is
// empty, so user edits are never overwritten.
func (r *GormRepo) FillProfileGaps(ctx context.Context, u *models.User, name, avatarURL string) error {
	updates := map[string]any{}
	if u.Name == "" && name != "" {
		updates["name"] = name
		u.Name = name
	}
	if u.ProfileImage == "" && avatarURL != "" {
		updates["profile_image"] = avatarURL
		u.ProfileImage = avatarURL
	}
	if len(updates) == 0 {
		return nil
	}
	return r.updateUser(ctx, u.ID, updates)
}

func (r *GormRepo) updateUser(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
