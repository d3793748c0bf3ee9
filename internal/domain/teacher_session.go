package domain

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	// SnapshotEventType marks events whose payload is needed to replay a section.
	SnapshotEventType      = 2
	InvalidatedTokenPrefix = "INVALIDATED_"
)

var emptyEventData = json.RawMessage("{}")

type SessionEvent struct {
	Type      int             `json:"type" bson:"type"`
	Data      json.RawMessage `json:"data" bson:"data"`
	Timestamp int64           `json:"timestamp" bson:"timestamp"`
}

func (e SessionEvent) IsSnapshot() bool { return e.Type == SnapshotEventType }

// Minimized returns the event with its payload emptied unless it is a snapshot.
func (e SessionEvent) Minimized() SessionEvent {
	if e.IsSnapshot() {
		return e
	}
	e.Data = append(json.RawMessage(nil), emptyEventData...)
	return e
}

type TimelineSection struct {
	ID        string         `json:"id" bson:"id"`
	StartTime string         `json:"startTime" bson:"startTime"`
	EndTime   string         `json:"endTime" bson:"endTime"`
	Duration  float64        `json:"duration" bson:"duration"`
	Events    []SessionEvent `json:"events" bson:"events"`
}

type FileAccess struct {
	FileID     string    `json:"fileId" bson:"fileId"`
	FileName   string    `json:"fileName" bson:"fileName"`
	FolderID   string    `json:"folderId,omitempty" bson:"folderId,omitempty"`
	FolderName string    `json:"folderName,omitempty" bson:"folderName,omitempty"`
	AccessedAt time.Time `json:"accessedAt" bson:"accessedAt"`
	OpenedAt   string    `json:"openedAt,omitempty" bson:"openedAt,omitempty"`
	ClosedAt   string    `json:"closedAt,omitempty" bson:"closedAt,omitempty"`
	Duration   *float64  `json:"duration,omitempty" bson:"duration,omitempty"`
	IdleTime   *float64  `json:"idleTime,omitempty" bson:"idleTime,omitempty"`
	ActiveTime *float64  `json:"activeTime,omitempty" bson:"activeTime,omitempty"`
}

type DeletionMarker struct {
	Status      bool       `gorm:"column:deleted_status;index;not null;default:false" json:"status" bson:"status"`
	DeletedBy   string     `gorm:"column:deleted_by;size:128" json:"deletedBy,omitempty" bson:"deletedBy,omitempty"`
	DeletedTime *time.Time `gorm:"column:deleted_time" json:"deletedTime,omitempty" bson:"deletedTime,omitempty"`
}

// TeacherSession is one login-to-logout activity window. IdleTime and
// ActiveTime are derived from FileAccessLog and rewritten on every mutation
// of the log.
type TeacherSession struct {
	ID             string                               `gorm:"primaryKey;size:24" json:"_id" bson:"_id"`
	Username       string                               `gorm:"size:255;index;not null" json:"username" bson:"username"`
	CourseClassRef string                               `gorm:"column:course_class_ref;size:128;index" json:"courseClassName" bson:"courseClassName"`
	SectionRef     string                               `gorm:"column:section_ref;size:128;index" json:"sectionName" bson:"sectionName"`
	SubjectRef     string                               `gorm:"column:subject_ref;size:128;index" json:"subjectName" bson:"subjectName"`
	SessionToken   string                               `gorm:"size:512;index;not null" json:"sessionToken" bson:"sessionToken"`
	DeviceID       string                               `gorm:"size:255" json:"deviceId,omitempty" bson:"deviceId,omitempty"`
	LoginAt        time.Time                            `gorm:"index;not null" json:"loginAt" bson:"loginAt"`
	LogoutAt       *time.Time                           `gorm:"index" json:"logoutAt,omitempty" bson:"logoutAt,omitempty"`
	LoginTime      time.Time                            `gorm:"index;not null" json:"loginTime" bson:"loginTime"`
	LogoutTime     *time.Time                           `json:"logoutTime,omitempty" bson:"logoutTime,omitempty"`
	Active         bool                                 `gorm:"index;not null" json:"active" bson:"active"`
	LastActiveAt   time.Time                            `json:"lastActiveAt" bson:"lastActiveAt"`
	IdleTime       *float64                             `json:"idleTime" bson:"idleTime"`
	ActiveTime     *float64                             `json:"activeTime" bson:"activeTime"`
	FileAccessLog  datatypes.JSONSlice[FileAccess]      `gorm:"column:file_access_log" json:"fileAccessLog" bson:"fileAccessLog"`
	Sections       datatypes.JSONSlice[TimelineSection] `gorm:"column:sections" json:"section" bson:"section"`
	IsDeleted      DeletionMarker                       `gorm:"embedded" json:"-" bson:"isDeleted"`
	CreatedAt      time.Time                            `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time                            `json:"updatedAt" bson:"updatedAt"`
}

func (TeacherSession) TableName() string { return "teacher_sessions" }

// IsLive reports whether the session is still open and its token has not
// been invalidated by an admin or the expiration sweep.
func (s *TeacherSession) IsLive() bool {
	if s == nil || !s.Active {
		return false
	}
	if s.LogoutAt != nil || s.LogoutTime != nil {
		return false
	}
	return !strings.HasPrefix(s.SessionToken, InvalidatedTokenPrefix)
}

// EventCount sums event list lengths across all sections.
func (s *TeacherSession) EventCount() int {
	total := 0
	for _, sec := range s.Sections {
		total += len(sec.Events)
	}
	return total
}

// EffectiveLogout prefers logoutTime and falls back to logoutAt.
func (s *TeacherSession) EffectiveLogout() *time.Time {
	if s.LogoutTime != nil {
		return s.LogoutTime
	}
	return s.LogoutAt
}

// EffectiveLogin prefers loginTime and falls back to loginAt.
func (s *TeacherSession) EffectiveLogin() time.Time {
	if !s.LoginTime.IsZero() {
		return s.LoginTime
	}
	return s.LoginAt
}
