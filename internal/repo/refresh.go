package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/campus_events/internal/models"
)

// RecordRefresh adds a ledger entry for a freshly issued refresh token.
// A jti collision is reported as ErrDuplicateJTI and is not retryable.
func (r *GormRepo) RecordRefresh(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error {
	entry := models.RefreshToken{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
	}

	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateJTI
	}
	return nil
}

func (r *GormRepo) FindRefreshByJTI(ctx context.Context, jti string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("jti = ?", jti).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefreshNotFound
		}
		return nil, err
	}
	return &token, nil
}

// RevokeByJTI flips one entry to revoked. Unknown or already revoked jtis
// are not errors; the bool reports whether this call did the flip.
func (r *GormRepo) RevokeByJTI(ctx context.Context, jti string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("jti = ? AND revoked = ?", jti, false).
		Update("revoked", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	return res.RowsAffected, res.Error
}

func (r *GormRepo) CountActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, now.UTC()).
		Count(&count).Error
	return count, err
}

// PruneExpired deletes entries past their expiry, revoked or not.
func (r *GormRepo) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
