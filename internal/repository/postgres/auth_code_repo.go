package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// AuthCodeRepo implements repository.AuthCodeRepository on top of GORM.
// It is bound to whatever *gorm.DB it is constructed with, so the unit of
// work can hand out instances scoped to an open transaction.
type AuthCodeRepo struct {
	db *gorm.DB
}

func NewAuthCodeRepo(db *gorm.DB) *AuthCodeRepo {
	return &AuthCodeRepo{db: db}
}

func (r *AuthCodeRepo) LatestByUserID(userID uint) (*entity.AuthCode, error) {
	var code entity.AuthCode
	err := r.db.
		Where("user_id = ?", userID).
		Order("id DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest auth code: %w", err)
	}
	return &code, nil
}

func (r *AuthCodeRepo) FindByUserIDAndCode(userID uint, code string) (*entity.AuthCode, error) {
	var row entity.AuthCode
	err := r.db.
		Where("user_id = ? AND code = ?", userID, code).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find auth code: %w", err)
	}
	return &row, nil
}

func (r *AuthCodeRepo) Create(code *entity.AuthCode) error {
	return r.db.Create(code).Error
}

func (r *AuthCodeRepo) ResetCode(id uint, newCode string, expiresAt time.Time) error {
	return r.db.Model(&entity.AuthCode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"code":       newCode,
			"expires_at": expiresAt.UTC(),
			"used":       false,
		}).Error
}

func (r *AuthCodeRepo) ExtendExpiry(id uint, expiresAt time.Time) error {
	return r.db.Model(&entity.AuthCode{}).
		Where("id = ?", id).
		Update("expires_at", expiresAt.UTC()).Error
}

func (r *AuthCodeRepo) MarkValidated(id uint) error {
	return r.db.Model(&entity.AuthCode{}).
		Where("id = ?", id).
		Update("used", true).Error
}

func (r *AuthCodeRepo) DeleteExpiredByEmail(email string, now time.Time) (int64, error) {
	res := r.db.
		Where("email = ? AND expires_at <= ?", email, now.UTC()).
		Delete(&entity.AuthCode{})
	return res.RowsAffected, res.Error
}

func (r *AuthCodeRepo) DeleteOthersByEmail(email string, keepID uint) (int64, error) {
	res := r.db.
		Where("email = ? AND id <> ?", email, keepID).
		Delete(&entity.AuthCode{})
	return res.RowsAffected, res.Error
}
