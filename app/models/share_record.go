package models

import "time"

// ShareRecord publishes the outcome of one successful usage entry under a
// short public id. Each usage entry is shared at most once.
type ShareRecord struct {
	ID           string    `gorm:"type:char(36);primaryKey" json:"-"`
	ShareID      string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_share_records_share_id" json:"share_id"`
	UsageEntryID string    `gorm:"type:char(36);not null;uniqueIndex:ux_share_records_usage_entry" json:"-"`
	UserID       string    `gorm:"type:varchar(191);not null;index" json:"-"`
	Label        string    `gorm:"type:varchar(500);not null;default:''" json:"label"`
	SourceURL    string    `gorm:"type:text;not null" json:"source_url"`
	TargetURL    string    `gorm:"type:text;not null" json:"target_url"`
	ResidualURL  string    `gorm:"type:text;not null" json:"residual_url"`
	SampleRate   int       `gorm:"not null;default:48000" json:"sample_rate"`
	ViewCount    int64     `gorm:"not null;default:0" json:"view_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
