package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejin/moim-api/internal/database"
	"github.com/sejin/moim-api/internal/lifecycle"
	"github.com/sejin/moim-api/internal/metrics"
	"github.com/sejin/moim-api/internal/middleware"
	"github.com/sejin/moim-api/internal/models"
)

// ToggleRecruitment flips an activity between active and locked. Locking is
// the author's "end recruitment" and requires the minimum headcount; the
// reverse reopens recruitment with membership untouched.
func ToggleRecruitment(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	var applied string
	txErr := database.DB.Transaction(func(tx *gorm.DB) error {
		activity, err := loadActivityForUpdate(tx, activityID)
		if err != nil {
			return err
		}

		applied = lifecycle.TransitionLock
		next := models.StatusLocked
		if activity.Status == models.StatusLocked {
			applied = lifecycle.TransitionReopen
			next = models.StatusActive
		}

		if err := lifecycle.CanTransition(activity, userID, applied); err != nil {
			return err
		}
		return tx.Model(activity).Update("status", next).Error
	})
	if txErr != nil {
		return fail(c, txErr)
	}

	metrics.Transitions.WithLabelValues(applied).Inc()
	broadcastStatus(activityID, userID, applied)

	return c.JSON(fiber.Map{"ok": true, "transition": applied})
}

// CompleteActivity closes a locked activity as done and bumps every
// participant's completion counter. The counter update rides the same
// transaction as the status change, so a repeat call fails the guard before
// it can double-count.
func CompleteActivity(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	var activity *models.Activity
	txErr := database.DB.Transaction(func(tx *gorm.DB) error {
		activity, err = loadActivityForUpdate(tx, activityID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanTransition(activity, userID, lifecycle.TransitionComplete); err != nil {
			return err
		}
		if err := tx.Model(activity).Update("status", models.StatusDone).Error; err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(activity.Participants))
		for _, p := range activity.Participants {
			ids = append(ids, p.UserID)
		}
		return tx.Model(&models.User{}).Where("id IN ?", ids).
			UpdateColumn("completed_count", gorm.Expr("completed_count + ?", 1)).Error
	})
	if txErr != nil {
		return fail(c, txErr)
	}

	metrics.Transitions.WithLabelValues(lifecycle.TransitionComplete).Inc()
	notifyParticipants(activity, userID, "activity_completed",
		"Activity completed",
		activity.Title+" is done. See you next time!",
	)
	broadcastStatus(activityID, userID, lifecycle.TransitionComplete)

	return c.JSON(fiber.Map{"ok": true})
}

// CancelActivity aborts an active or locked activity. Members are notified
// and each acknowledges individually (AckCancelled) to clear it from their
// ongoing list.
func CancelActivity(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	var activity *models.Activity
	txErr := database.DB.Transaction(func(tx *gorm.DB) error {
		activity, err = loadActivityForUpdate(tx, activityID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanTransition(activity, userID, lifecycle.TransitionCancel); err != nil {
			return err
		}
		return tx.Model(activity).Update("status", models.StatusCancelled).Error
	})
	if txErr != nil {
		return fail(c, txErr)
	}

	metrics.Transitions.WithLabelValues(lifecycle.TransitionCancel).Inc()
	notifyParticipants(activity, userID, "activity_cancelled",
		"Activity cancelled",
		activity.Title+" was cancelled by the author",
	)
	broadcastStatus(activityID, userID, lifecycle.TransitionCancel)

	return c.JSON(fiber.Map{"ok": true})
}

// AckCancelled records a member's acknowledgement of a cancellation as a
// dismissal: the activity stops showing in that member's ongoing list while
// everyone else is unaffected.
func AckCancelled(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	txErr := database.DB.Transaction(func(tx *gorm.DB) error {
		activity, err := loadActivityForUpdate(tx, activityID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanAck(activity, userID); err != nil {
			return err
		}
		if activity.DismissedBy(userID) {
			return nil // repeat ack is a no-op
		}
		return tx.Create(&models.Dismissal{ActivityID: activityID, UserID: userID}).Error
	})
	if txErr != nil {
		return fail(c, txErr)
	}

	return c.JSON(fiber.Map{"ok": true})
}

// DeleteActivity marks the activity deleted. Only the author may delete,
// and only while alone on it; with members present the escape hatch is
// cancel. Rows are never removed from the store.
func DeleteActivity(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	txErr := database.DB.Transaction(func(tx *gorm.DB) error {
		activity, err := loadActivityForUpdate(tx, activityID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanTransition(activity, userID, lifecycle.TransitionDelete); err != nil {
			return err
		}
		return tx.Model(activity).Update("status", models.StatusDeleted).Error
	})
	if txErr != nil {
		return fail(c, txErr)
	}

	metrics.Transitions.WithLabelValues(lifecycle.TransitionDelete).Inc()
	return c.JSON(fiber.Map{"ok": true})
}

// RestoreActivity un-ghosts an activity for the caller: the author undoes a
// delete (status back to active), any other viewer clears their own
// dismissal.
func RestoreActivity(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	txErr := database.DB.Transaction(func(tx *gorm.DB) error {
		activity, err := loadActivityForUpdate(tx, activityID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanTransition(activity, userID, lifecycle.TransitionRestore); err != nil {
			return err
		}

		if activity.Status == models.StatusDeleted {
			if err := tx.Model(activity).Update("status", models.StatusActive).Error; err != nil {
				return err
			}
		}
		// Clear the caller's dismissal either way. Hard delete so a later
		// hide can re-insert under the unique index.
		return tx.Unscoped().Where("activity_id = ? AND user_id = ?", activityID, userID).
			Delete(&models.Dismissal{}).Error
	})
	if txErr != nil {
		return fail(c, txErr)
	}

	metrics.Transitions.WithLabelValues(lifecycle.TransitionRestore).Inc()
	return c.JSON(fiber.Map{"ok": true})
}

// HideActivity dismisses an activity from the caller's own lists. Other
// viewers and global status are untouched.
func HideActivity(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	txErr := database.DB.Transaction(func(tx *gorm.DB) error {
		activity, err := loadActivityForUpdate(tx, activityID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanHide(activity, userID); err != nil {
			return err
		}
		if activity.DismissedBy(userID) {
			return nil // repeat hide is a no-op
		}
		return tx.Create(&models.Dismissal{ActivityID: activityID, UserID: userID}).Error
	})
	if txErr != nil {
		return fail(c, txErr)
	}

	return c.JSON(fiber.Map{"ok": true})
}

// broadcastStatus pushes a status-change event into the activity's
// websocket room.
func broadcastStatus(activityID, actorID uuid.UUID, transition string) {
	WS.Broadcast(activityID, actorID, WSEvent{
		Type:       EventStatusChanged,
		ActivityID: activityID.String(),
		UserID:     actorID.String(),
		Data: map[string]interface{}{
			"transition": transition,
			"at":         time.Now().UTC(),
		},
	})
}
