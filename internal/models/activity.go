package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Activity categories
const (
	CategoryMeal     = "meal"
	CategoryGroupBuy = "group_buy"
)

// Activity statuses. Deleted is a status value, not row removal — rows stay in
// the store and per-viewer removal goes through Dismissal.
const (
	StatusActive    = "active"
	StatusLocked    = "locked"
	StatusCancelled = "cancelled"
	StatusDone      = "done"
	StatusDeleted   = "deleted"
)

// statusLegacyCompleted is an old synonym for done still present in stored
// rows. Normalized on read, never written.
const statusLegacyCompleted = "completed"

// ExpiryWindow is how long an activity stays on the square feed.
const ExpiryWindow = 5 * 24 * time.Hour

type Activity struct {
	ID                   uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	AuthorID             uuid.UUID      `json:"authorId" gorm:"type:uuid;index;not null"`
	Title                string         `json:"title" gorm:"not null"`
	Description          string         `json:"description"`
	Location             string         `json:"location"`
	Category             string         `json:"category" gorm:"not null"` // meal, group_buy
	MinPeople            int            `json:"minPeople" gorm:"not null"`
	MaxPeople            int            `json:"maxPeople" gorm:"not null"`
	ScheduledTime        string         `json:"scheduledTime" gorm:"not null"` // immutable after create
	Status               string         `json:"status" gorm:"not null;default:'active'"`
	RequiresVerification bool           `json:"requiresVerification" gorm:"default:false"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
	DeletedAt            gorm.DeletedAt `json:"-" gorm:"index"`

	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:ActivityID"`
	Dismissals   []Dismissal   `json:"-" gorm:"foreignKey:ActivityID"`
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// AfterFind folds the legacy status synonym into the closed set.
func (a *Activity) AfterFind(tx *gorm.DB) error {
	if a.Status == statusLegacyCompleted {
		a.Status = StatusDone
	}
	return nil
}

// CurrentPeople reports the membership count. Requires Participants preloaded.
func (a *Activity) CurrentPeople() int {
	return len(a.Participants)
}

func (a *Activity) IsFull() bool {
	return len(a.Participants) >= a.MaxPeople
}

// CanFinish reports whether membership has reached the minimum headcount.
func (a *Activity) CanFinish() bool {
	return len(a.Participants) >= a.MinPeople
}

// IsExpired is evaluated at read time and never persisted.
func (a *Activity) IsExpired(now time.Time) bool {
	return now.Sub(a.CreatedAt) > ExpiryWindow
}

func (a *Activity) HasParticipant(userID uuid.UUID) bool {
	for _, p := range a.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (a *Activity) DismissedBy(userID uuid.UUID) bool {
	for _, d := range a.Dismissals {
		if d.UserID == userID {
			return true
		}
	}
	return false
}

// IsGhostFor reports whether the activity shows dimmed, restore-only for this
// viewer: globally deleted or locally dismissed.
func (a *Activity) IsGhostFor(userID uuid.UUID) bool {
	return a.Status == StatusDeleted || a.DismissedBy(userID)
}

// ValidCategory reports whether c is a known activity category.
func ValidCategory(c string) bool {
	return c == CategoryMeal || c == CategoryGroupBuy
}

type CreateActivityRequest struct {
	Title                string `json:"title" validate:"required"`
	Description          string `json:"description"`
	Location             string `json:"location"`
	Category             string `json:"category" validate:"required"`
	MinPeople            int    `json:"minPeople"`
	MaxPeople            int    `json:"maxPeople"`
	ScheduledTime        string `json:"scheduledTime" validate:"required"`
	RequiresVerification bool   `json:"requiresVerification"`
}
