package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/SirCrest/SDProfileManager-Windows/internal/database/models"
)

// RecentProfileRepository tracks recently loaded and saved containers.
type RecentProfileRepository struct {
	db *gorm.DB
}

// NewRecentProfileRepository creates a new RecentProfileRepository.
func NewRecentProfileRepository(db *gorm.DB) *RecentProfileRepository {
	return &RecentProfileRepository{db: db}
}

// Upsert records a container by path, refreshing its name, template and
// OpenedAt when it is already known.
func (r *RecentProfileRepository) Upsert(ctx context.Context, path, name, templateID string) (*models.RecentProfile, error) {
	var recent models.RecentProfile
	now := time.Now().UTC()

	result := r.db.WithContext(ctx).First(&recent, "path = ?", path)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		recent = models.RecentProfile{
			ID:         cuid.New(),
			Path:       path,
			Name:       name,
			TemplateID: templateID,
			OpenedAt:   now,
		}
		if err := r.db.WithContext(ctx).Create(&recent).Error; err != nil {
			return nil, err
		}
		return &recent, nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	recent.Name = name
	recent.TemplateID = templateID
	recent.OpenedAt = now
	if err := r.db.WithContext(ctx).Save(&recent).Error; err != nil {
		return nil, err
	}
	return &recent, nil
}

// FindRecent returns up to limit entries, newest first.
func (r *RecentProfileRepository) FindRecent(ctx context.Context, limit int) ([]models.RecentProfile, error) {
	var recent []models.RecentProfile
	query := r.db.WithContext(ctx).Order("opened_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&recent)
	return recent, result.Error
}

// Delete forgets a container.
func (r *RecentProfileRepository) Delete(ctx context.Context, path string) error {
	return r.db.WithContext(ctx).Delete(&models.RecentProfile{}, "path = ?", path).Error
}
