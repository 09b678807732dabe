package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant roles
const (
	RoleAuthor = "author"
	RoleMember = "member"
)

// Participant is one row of an activity's membership ledger. Join order is
// preserved via JoinedAt; the author gets a row at creation time.
type Participant struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	ActivityID uuid.UUID      `json:"activityId" gorm:"type:uuid;not null;uniqueIndex:idx_activity_user"`
	UserID     uuid.UUID      `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_activity_user"`
	Role       string         `json:"role" gorm:"not null;default:'member'"` // author, member
	JoinedAt   time.Time      `json:"joinedAt"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations (for preloading)
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	return nil
}

// ParticipantInfo is the member list entry returned to clients.
type ParticipantInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}
