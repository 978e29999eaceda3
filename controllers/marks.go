package controllers

import (
	"fmt"

	"campusdesk_go/database"
	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/services/notifications"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm/clause"
)

type MarkController struct {
	notifier services.Notifier
}

func NewMarkController(notifier services.Notifier) *MarkController {
	return &MarkController{notifier: notifier}
}

type MarksRequest struct {
	Enrollment  string                `json:"enrollment" validate:"required"`
	Name        string                `json:"name"`
	Class       string                `json:"class"`
	MST         float64               `json:"mst" validate:"gte=0"`
	Internal    float64               `json:"internal" validate:"gte=0"`
	Assignments float64               `json:"assignments" validate:"gte=0"`
	Weights     *services.MarkWeights `json:"weights"`
	Notes       string                `json:"notes"`
}

// SaveMarks computes the weighted percentage, upserts it by enrollment and notifies the student.
func (mc *MarkController) SaveMarks(c *fiber.Ctx) error {
	var req MarksRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	pct, w := services.WeightedPercentage(req.MST, req.Internal, req.Assignments, req.Weights)
	mark := models.Mark{
		Enrollment:        normalizeEnrollment(req.Enrollment),
		Name:              utils.SanitizeString(req.Name),
		Class:             utils.NormalizeClass(req.Class),
		MST:               req.MST,
		Internal:          req.Internal,
		Assignments:       req.Assignments,
		WeightMST:         w[0],
		WeightInternal:    w[1],
		WeightAssignments: w[2],
		Percentage:        pct,
		Notes:             req.Notes,
		LastUpdatedBy:     middleware.ActorName(c),
	}

	err := database.DB.WithContext(c.UserContext()).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "enrollment"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "class", "mst", "internal", "assignments",
			"weight_mst", "weight_internal", "weight_assignments",
			"percentage", "notes", "last_updated_by", "updated_at",
		}),
	}).Create(&mark).Error
	if err != nil {
		return respondServiceError(c, err, "Failed to save marks")
	}

	if mc.notifier != nil {
		mc.notifier.Enqueue(notifications.EnrollmentTarget(mark.Enrollment), notifications.Message{
			Title: "📊 Marks Updated",
			Body:  fmt.Sprintf("Hello %s, your MST/Internal/Assignment marks have been updated. Total: %.2f%%", mark.Name, pct),
			URL:   "/marks.html",
		})
	}
	return utils.SuccessMap(c, fiber.StatusOK, "Marks saved", fiber.Map{"marks": mark})
}

func (mc *MarkController) GetMarks(c *fiber.Ctx) error {
	var mark models.Mark
	if err := database.DB.WithContext(c.UserContext()).Where("enrollment = ?", normalizeEnrollment(c.Params("enrollment"))).First(&mark).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch marks")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"marks": mark})
}
