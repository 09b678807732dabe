package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejin/moim-api/internal/database"
	"github.com/sejin/moim-api/internal/lifecycle"
	"github.com/sejin/moim-api/internal/metrics"
	"github.com/sejin/moim-api/internal/middleware"
	"github.com/sejin/moim-api/internal/models"
)

// JoinActivity appends the caller to the membership ledger. The guard chain
// and the insert run in one transaction that takes the activity row lock
// before re-counting participants, so two racing joins by distinct users
// serialize and cannot push membership past maxPeople; the unique
// (activity_id, user_id) index backs the already-joined check.
func JoinActivity(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	var activity *models.Activity
	txErr := database.DB.Transaction(func(tx *gorm.DB) error {
		activity, err = loadActivityForUpdate(tx, activityID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanJoin(activity, userID, user.Verified); err != nil {
			return err
		}
		member := models.Participant{
			ActivityID: activityID,
			UserID:     userID,
			Role:       models.RoleMember,
		}
		return tx.Create(&member).Error
	})
	if txErr != nil {
		var d *lifecycle.Denial
		if errors.As(txErr, &d) {
			metrics.JoinDenials.WithLabelValues(d.Reason).Inc()
		}
		return fail(c, txErr)
	}

	name := user.DisplayName
	if name == "" {
		name = user.Name
	}
	CreateNotification(activity.AuthorID, "member_joined",
		"New participant",
		name+" joined "+activity.Title,
		map[string]interface{}{"activityId": activityID.String()},
	)

	WS.Broadcast(activityID, userID, WSEvent{
		Type:       EventMemberJoined,
		ActivityID: activityID.String(),
		UserID:     userID.String(),
		Data: map[string]interface{}{
			"userName": name,
		},
	})

	return c.JSON(fiber.Map{
		"ok":         true,
		"activityId": activityID,
	})
}

// QuitActivity removes a non-author member from the ledger. Status is never
// touched here.
func QuitActivity(c *fiber.Ctx) error {
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
		if err := lifecycle.CanQuit(activity, userID); err != nil {
			return err
		}
		// Hard delete so a later rejoin does not trip the unique
		// (activity_id, user_id) index on a soft-deleted row.
		return tx.Unscoped().Where("activity_id = ? AND user_id = ?", activityID, userID).
			Delete(&models.Participant{}).Error
	})
	if txErr != nil {
		return fail(c, txErr)
	}

	CreateNotification(activity.AuthorID, "member_quit",
		"Participant left",
		"Someone left "+activity.Title,
		map[string]interface{}{"activityId": activityID.String()},
	)

	WS.Broadcast(activityID, userID, WSEvent{
		Type:       EventMemberLeft,
		ActivityID: activityID.String(),
		UserID:     userID.String(),
	})

	return c.JSON(fiber.Map{"ok": true})
}
