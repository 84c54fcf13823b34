// Package repositories provides data access for session preferences.
package repositories

import (
	"context"
	"errors"
	"strconv"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/SirCrest/SDProfileManager-Windows/internal/database/models"
)

// SettingRepository handles setting data access.
type SettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// FindAll returns all settings.
func (r *SettingRepository) FindAll(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	result := r.db.WithContext(ctx).
		Order("key ASC").
		Find(&settings)
	return settings, result.Error
}

// FindByKey returns a setting by key, or nil when it is not stored.
func (r *SettingRepository) FindByKey(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	result := r.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &setting, nil
}

// Upsert creates or updates a setting by key.
func (r *SettingRepository) Upsert(ctx context.Context, key, value string) (*models.Setting, error) {
	var setting models.Setting

	result := r.db.WithContext(ctx).First(&setting, "key = ?", key)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		setting = models.Setting{
			ID:    cuid.New(),
			Key:   key,
			Value: value,
		}
		if err := r.db.WithContext(ctx).Create(&setting).Error; err != nil {
			return nil, err
		}
		return &setting, nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	setting.Value = value
	if err := r.db.WithContext(ctx).Save(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

// GetBool reads a boolean setting. Missing or unparsable values yield def.
func (r *SettingRepository) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	setting, err := r.FindByKey(ctx, key)
	if err != nil || setting == nil {
		return def, err
	}
	v, perr := strconv.ParseBool(setting.Value)
	if perr != nil {
		return def, nil
	}
	return v, nil
}

// SetBool stores a boolean setting.
func (r *SettingRepository) SetBool(ctx context.Context, key string, value bool) error {
	_, err := r.Upsert(ctx, key, strconv.FormatBool(value))
	return err
}

// Delete deletes a setting by key.
func (r *SettingRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&models.Setting{}, "key = ?", key).Error
}
