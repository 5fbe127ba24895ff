package models

import (
	"time"

	"gorm.io/datatypes"
)

// UsageProfile is the snapshot of what a request asked for at admission time.
type UsageProfile struct {
	Tier         string `json:"tier"`
	SizeBytes    int64  `json:"size_bytes"`
	HighFidelity bool   `json:"high_fidelity"`
}

// UsageEntry is one consumed unit. Entries are append-only.
type UsageEntry struct {
	ID        string                           `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    string                           `gorm:"type:varchar(191);not null;index:idx_usage_entries_user_created,priority:1" json:"user_id"`
	Label     string                           `gorm:"type:varchar(500);not null;default:''" json:"label"`
	Profile   datatypes.JSONType[UsageProfile] `json:"profile"`
	CreatedAt time.Time                        `gorm:"not null;index:idx_usage_entries_user_created,priority:2" json:"created_at"`
}

// UsageLock is the per-user row locked while counting and inserting entries.
type UsageLock struct {
	UserID    string    `gorm:"type:varchar(191);primaryKey" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
