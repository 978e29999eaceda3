package controllers

import (
	"fmt"
	"strings"
	"time"

	"campusdesk_go/database"
	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/services/notifications"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
)

type AssignmentController struct {
	notifier services.Notifier
}

func NewAssignmentController(notifier services.Notifier) *AssignmentController {
	return &AssignmentController{notifier: notifier}
}

type AssignmentRequest struct {
	Class       string `json:"class" validate:"required"`
	Title       string `json:"title" validate:"required,max=255"`
	Subject     string `json:"subject" validate:"required"`
	Description string `json:"description"`
	Deadline    string `json:"deadline" validate:"required"`
}

type AssignmentUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Subject     *string `json:"subject"`
	Description *string `json:"description"`
	Deadline    *string `json:"deadline"`
}

// parseDeadline accepts RFC3339, "YYYY-MM-DDTHH:MM" (datetime-local) and a bare date (end of that day).
func parseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t.Add(24*time.Hour - time.Second), nil
	}
	return time.Time{}, fmt.Errorf("deadline must be a date or datetime")
}

// CreateAssignment stores the assignment and notifies its class.
func (ac *AssignmentController) CreateAssignment(c *fiber.Ctx) error {
	var req AssignmentRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return badRequest(c, err.Error())
	}

	a := models.Assignment{
		Code:        utils.GenerateCode("A"),
		Class:       utils.NormalizeClass(req.Class),
		Title:       utils.SanitizeString(req.Title),
		Subject:     utils.SanitizeString(req.Subject),
		Description: req.Description,
		Deadline:    deadline,
		Active:      true,
		CreatedBy:   middleware.ActorName(c),
	}
	if err := database.DB.WithContext(c.UserContext()).Create(&a).Error; err != nil {
		return respondServiceError(c, err, "Failed to create assignment")
	}

	ac.notifier.Enqueue(notifications.ClassTarget(a.Class), notifications.Message{
		Title: "📝 New Assignment",
		Body:  fmt.Sprintf("%s: %s (due %s)", a.Subject, a.Title, a.Deadline.Format("02 Jan 15:04")),
		URL:   "/assignments.html",
		Data:  map[string]string{"code": a.Code},
	})
	return utils.SuccessWithCode(c, fiber.StatusCreated, "Assignment created", a)
}

// GetAssignments lists active assignments, optionally for one class. Students only see their own class.
func (ac *AssignmentController) GetAssignments(c *fiber.Ctx) error {
	query := database.DB.WithContext(c.UserContext()).Where("active = ?", true)
	if class := classScope(c); class != "" {
		query = query.Where("class = ?", class)
	}
	var list []models.Assignment
	if err := query.Order("deadline ASC").Find(&list).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch assignments")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"assignments": list})
}

func (ac *AssignmentController) UpdateAssignment(c *fiber.Ctx) error {
	var req AssignmentUpdateRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	db := database.DB.WithContext(c.UserContext())
	var a models.Assignment
	if err := db.Where("code = ? AND active = ?", c.Params("code"), true).First(&a).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch assignment")
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = utils.SanitizeString(*req.Title)
	}
	if req.Subject != nil {
		updates["subject"] = utils.SanitizeString(*req.Subject)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Deadline != nil {
		d, err := parseDeadline(*req.Deadline)
		if err != nil {
			return badRequest(c, err.Error())
		}
		updates["deadline"] = d
	}
	if len(updates) == 0 {
		return badRequest(c, "Nothing to update")
	}
	if err := db.Model(&a).Updates(updates).Error; err != nil {
		return respondServiceError(c, err, "Failed to update assignment")
	}
	return utils.Success(c, "Assignment updated", a)
}

// DeleteAssignment deactivates the assignment.
func (ac *AssignmentController) DeleteAssignment(c *fiber.Ctx) error {
	res := database.DB.WithContext(c.UserContext()).Model(&models.Assignment{}).
		Where("code = ? AND active = ?", c.Params("code"), true).Update("active", false)
	if res.Error != nil {
		return respondServiceError(c, res.Error, "Failed to delete assignment")
	}
	if res.RowsAffected == 0 {
		return notFound(c, "Assignment")
	}
	return utils.Success(c, "Assignment deleted", nil)
}

// classScope is the class filter of a list request: a student's own class, else the ?class query.
func classScope(c *fiber.Ctx) string {
	if claims, ok := c.Locals("claims").(*middleware.Claims); ok && !claims.IsStaff() && claims.Class != "" {
		return utils.NormalizeClass(claims.Class)
	}
	return utils.NormalizeClass(c.Query("class"))
}
