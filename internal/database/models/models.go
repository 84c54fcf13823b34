// Package models contains the database model definitions for session
// preferences.
package models

import (
	"time"
)

// Setting keys.
const (
	SettingLockSourceProfile = "lock_source_profile"
)

// Setting is a key/value preference.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }

// RecentProfile is a profile container that was loaded or saved.
// Table: recent_profiles
type RecentProfile struct {
	ID         string    `gorm:"column:id;primaryKey"`
	Path       string    `gorm:"column:path;uniqueIndex"`
	Name       string    `gorm:"column:name"`
	TemplateID string    `gorm:"column:template_id"`
	OpenedAt   time.Time `gorm:"column:opened_at;index"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (RecentProfile) TableName() string { return "recent_profiles" }

// All returns every model for AutoMigrate.
func All() []any {
	return []any{&Setting{}, &RecentProfile{}}
}
