package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dismissal records that one viewer no longer sees an activity in shared
// lists. A single relation covers self-hide, cancel acknowledgement, and
// post-delete dismissal; it never touches the activity's global status.
type Dismissal struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	ActivityID uuid.UUID      `json:"activityId" gorm:"type:uuid;not null;uniqueIndex:idx_activity_dismisser"`
	UserID     uuid.UUID      `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_activity_dismisser"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (d *Dismissal) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
