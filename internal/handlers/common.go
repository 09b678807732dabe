package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sejin/moim-api/internal/database"
	"github.com/sejin/moim-api/internal/lifecycle"
	"github.com/sejin/moim-api/internal/models"
)

var errActivityNotFound = &lifecycle.Denial{Reason: lifecycle.ReasonNotFound, Message: "Activity not found"}

// statusForReason maps denial reasons onto HTTP status codes.
func statusForReason(reason string) int {
	switch reason {
	case lifecycle.ReasonValidation, lifecycle.ReasonNotAMember, lifecycle.ReasonAuthorCannotQuit:
		return fiber.StatusBadRequest
	case lifecycle.ReasonNotAuthor, lifecycle.ReasonVerificationRequired:
		return fiber.StatusForbidden
	case lifecycle.ReasonNotFound:
		return fiber.StatusNotFound
	case lifecycle.ReasonAlreadyJoined, lifecycle.ReasonFull, lifecycle.ReasonInvalidTransition:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// fail turns an operation error into the wire shape: ok=false, a machine
// reason, and a human message. Non-denial errors surface as transient.
func fail(c *fiber.Ctx, err error) error {
	var d *lifecycle.Denial
	if errors.As(err, &d) {
		return c.Status(statusForReason(d.Reason)).JSON(fiber.Map{
			"ok":     false,
			"reason": d.Reason,
			"error":  d.Message,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"ok":     false,
		"reason": lifecycle.ReasonTransient,
		"error":  "Temporary failure, please retry",
	})
}

func validationError(c *fiber.Ctx, msg string) error {
	return fail(c, &lifecycle.Denial{Reason: lifecycle.ReasonValidation, Message: msg})
}

// withParticipants preloads the membership ledger in join order plus the
// viewer-dismissal rows every derivation needs.
func withParticipants(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		Preload("Dismissals")
}

// loadActivity fetches one activity with its ledger inside the given tx.
func loadActivity(tx *gorm.DB, id uuid.UUID) (*models.Activity, error) {
	var activity models.Activity
	if err := withParticipants(tx).First(&activity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errActivityNotFound
		}
		return nil, err
	}
	return &activity, nil
}

// loadActivityForUpdate locks the activity row for the rest of the
// transaction, so guards that read the ledger and then write (join's
// capacity re-count, complete's counter bump) serialize per activity on
// postgres. The sqlite driver drops the locking clause and serializes at
// the database level instead.
func loadActivityForUpdate(tx *gorm.DB, id uuid.UUID) (*models.Activity, error) {
	return loadActivity(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// ActivityView is an activity plus the read-time derivations for one viewer.
// Nothing in here is ever stored.
type ActivityView struct {
	models.Activity
	CurrentPeople int      `json:"currentPeople"`
	IsFull        bool     `json:"isFull"`
	CanFinish     bool     `json:"canFinish"`
	IsExpired     bool     `json:"isExpired"`
	IsGhost       bool     `json:"isGhost"`
	Actions       []string `json:"actions"`
}

func viewOf(a *models.Activity, viewerID uuid.UUID, now time.Time) ActivityView {
	actions := lifecycle.ActionsFor(a, viewerID, now)
	if actions == nil {
		actions = []string{}
	}
	return ActivityView{
		Activity:      *a,
		CurrentPeople: a.CurrentPeople(),
		IsFull:        a.IsFull(),
		CanFinish:     a.CanFinish(),
		IsExpired:     a.IsExpired(now),
		IsGhost:       a.IsGhostFor(viewerID),
		Actions:       actions,
	}
}

func viewsOf(activities []models.Activity, viewerID uuid.UUID, now time.Time) []ActivityView {
	views := make([]ActivityView, len(activities))
	for i := range activities {
		views[i] = viewOf(&activities[i], viewerID, now)
	}
	return views
}

// allActivities loads the full activity collection in arrival order; the
// visibility filters run over this on every read.
func allActivities() ([]models.Activity, error) {
	var activities []models.Activity
	err := withParticipants(database.DB).
		Order("created_at ASC, id ASC").
		Find(&activities).Error
	return activities, err
}
