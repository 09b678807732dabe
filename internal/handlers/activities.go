package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejin/moim-api/internal/database"
	"github.com/sejin/moim-api/internal/middleware"
	"github.com/sejin/moim-api/internal/models"
	"github.com/sejin/moim-api/internal/visibility"
)

// CreateActivity opens recruitment for a new meal or group-buy. The author
// is auto-joined as the first participant.
func CreateActivity(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req models.CreateActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, "Invalid request body")
	}

	if req.Title == "" {
		return validationError(c, "Title is required")
	}
	if !models.ValidCategory(req.Category) {
		return validationError(c, "Category must be meal or group_buy")
	}
	if req.MinPeople < 2 {
		return validationError(c, "minPeople must be at least 2")
	}
	if req.MaxPeople < req.MinPeople {
		return validationError(c, "maxPeople must be at least minPeople")
	}
	if req.ScheduledTime == "" {
		return validationError(c, "scheduledTime is required")
	}

	activity := models.Activity{
		AuthorID:             userID,
		Title:                req.Title,
		Description:          req.Description,
		Location:             req.Location,
		Category:             req.Category,
		MinPeople:            req.MinPeople,
		MaxPeople:            req.MaxPeople,
		ScheduledTime:        req.ScheduledTime,
		Status:               models.StatusActive,
		RequiresVerification: req.RequiresVerification,
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}
		author := models.Participant{
			ActivityID: activity.ID,
			UserID:     userID,
			Role:       models.RoleAuthor,
		}
		return tx.Create(&author).Error
	})
	if err != nil {
		return fail(c, err)
	}

	loaded, err := loadActivity(database.DB, activity.ID)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(viewOf(loaded, userID, time.Now()))
}

// GetSquare returns the public discover feed, filtered by title search and
// category, recomputed from the full collection on every call.
func GetSquare(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	activities, err := allActivities()
	if err != nil {
		return fail(c, err)
	}

	filters := visibility.Filters{
		Search:   c.Query("search"),
		Category: c.Query("category", visibility.CategoryAll),
	}

	now := time.Now()
	return c.JSON(viewsOf(visibility.Square(activities, userID, filters, now), userID, now))
}

// GetOngoing returns the viewer's activities still in play.
func GetOngoing(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	activities, err := allActivities()
	if err != nil {
		return fail(c, err)
	}

	now := time.Now()
	return c.JSON(viewsOf(visibility.Ongoing(activities, userID), userID, now))
}

// GetHistory returns the viewer's completed activities.
func GetHistory(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	activities, err := allActivities()
	if err != nil {
		return fail(c, err)
	}

	now := time.Now()
	return c.JSON(viewsOf(visibility.History(activities, userID), userID, now))
}

// GetActivity returns one activity with the viewer's derived flags and
// available actions.
func GetActivity(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	activity, err := loadActivity(database.DB, activityID)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(viewOf(activity, userID, time.Now()))
}

// GetParticipants lists the membership ledger in join order.
func GetParticipants(c *fiber.Ctx) error {
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return validationError(c, "Invalid activity ID")
	}

	var participants []models.Participant
	if err := database.DB.Where("activity_id = ?", activityID).
		Order("joined_at ASC").
		Preload("User").
		Find(&participants).Error; err != nil {
		return fail(c, err)
	}

	result := make([]models.ParticipantInfo, 0, len(participants))
	for _, p := range participants {
		result = append(result, models.ParticipantInfo{
			ID:          p.UserID,
			Name:        p.User.Name,
			DisplayName: p.User.DisplayName,
			Role:        p.Role,
			JoinedAt:    p.JoinedAt,
		})
	}

	return c.JSON(result)
}
