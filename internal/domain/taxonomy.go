package domain

import "time"

type TaxonomyKind string

const (
	TaxonomyCourseClass TaxonomyKind = "course_class"
	TaxonomySection     TaxonomyKind = "section"
	TaxonomySubject     TaxonomyKind = "subject"
)

type CourseClass struct {
	ID          string    `gorm:"primaryKey;size:24" json:"_id"`
	Name        string    `gorm:"size:255;index;not null" json:"name"`
	Description string    `gorm:"size:1024" json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Section struct {
	ID            string    `gorm:"primaryKey;size:24" json:"_id"`
	Name          string    `gorm:"size:255;index;not null" json:"name"`
	CourseClassID string    `gorm:"size:24;index" json:"courseClass,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Subject struct {
	ID          string    `gorm:"primaryKey;size:24" json:"_id"`
	Name        string    `gorm:"size:255;index;not null" json:"name"`
	Code        string    `gorm:"size:64" json:"code,omitempty"`
	Description string    `gorm:"size:1024" json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
