package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionModel is the persisted row backing service.Session (§3, §6). The
// conversation history, stateful markers, quota snapshot, and context
// files are stored as JSON blobs — they are opaque to the database and
// only ever decoded by the session layer itself.
type SessionModel struct {
	ID                      string `gorm:"primaryKey;size:64"`
	SelectedModel           string `gorm:"size:128"`
	HistoryJSON             string `gorm:"type:text"`
	MarkersJSON             string `gorm:"type:text"`
	QuotaJSON               string `gorm:"type:text"`
	ContextFilesJSON        string `gorm:"type:text"`
	LastGitHubCopilotRespID string `gorm:"size:128"`
	LastPremiumUsed         int
	UserInterrupted         bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
	DeletedAt               gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (SessionModel) TableName() string {
	return "sessions"
}
