package domain

import (
	"time"

	"gorm.io/datatypes"
)

type AuditChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

type AuditLog struct {
	ID          string                           `gorm:"primaryKey;size:36" json:"id"`
	Action      string                           `gorm:"size:32;index;not null" json:"action"`
	Module      string                           `gorm:"size:64;index;not null" json:"module"`
	Description string                           `gorm:"size:1024" json:"description"`
	UserID      string                           `gorm:"size:128;index" json:"userId"`
	UserName    string                           `gorm:"size:255" json:"userName"`
	UserRole    string                           `gorm:"size:64" json:"userRole"`
	DocumentID  string                           `gorm:"size:64;index" json:"documentId,omitempty"`
	Changes     datatypes.JSONSlice[AuditChange] `json:"changes,omitempty"`
	IP          string                           `gorm:"size:64" json:"ip,omitempty"`
	UserAgent   string                           `gorm:"size:512" json:"userAgent,omitempty"`
	Timestamp   time.Time                        `gorm:"index;not null" json:"timestamp"`
}
