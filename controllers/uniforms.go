package controllers

import (
	"campusdesk_go/database"
	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/services/notifications"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
)

type UniformController struct {
	notifier services.Notifier
}

func NewUniformController(notifier services.Notifier) *UniformController {
	return &UniformController{notifier: notifier}
}

type UniformRequestBody struct {
	Item     string `json:"item" validate:"required,max=100"`
	Size     string `json:"size" validate:"required,max=10"`
	Quantity int    `json:"quantity" validate:"omitempty,min=1,max=10"`
}

type UniformStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Approved Rejected Delivered"`
}

// Request records a uniform request for the calling student.
func (uc *UniformController) Request(c *fiber.Ctx) error {
	var req UniformRequestBody
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil || claims.Enrollment == "" {
		return utils.Error(c, fiber.StatusForbidden, "Only students can request uniforms")
	}

	db := database.DB.WithContext(c.UserContext())
	var student models.Student
	if err := db.Where("enrollment = ?", claims.Enrollment).First(&student).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch student")
	}

	if req.Quantity == 0 {
		req.Quantity = 1
	}
	record := models.UniformRequest{
		Enrollment: student.Enrollment,
		Name:       student.Name,
		Class:      student.Class,
		Item:       utils.SanitizeString(req.Item),
		Size:       utils.SanitizeString(req.Size),
		Quantity:   req.Quantity,
		Status:     models.UniformPending,
	}
	if err := db.Create(&record).Error; err != nil {
		return respondServiceError(c, err, "Failed to save request")
	}
	return utils.SuccessMap(c, fiber.StatusCreated, "Request submitted successfully", fiber.Map{"request": record})
}

// List returns every request, optionally filtered by ?status and ?class.
func (uc *UniformController) List(c *fiber.Ctx) error {
	q := database.DB.WithContext(c.UserContext()).Model(&models.UniformRequest{})
	if v := c.Query("status"); v != "" {
		q = q.Where("status = ?", v)
	}
	if v := utils.NormalizeClass(c.Query("class")); v != "" {
		q = q.Where("class = ?", v)
	}
	var list []models.UniformRequest
	if err := q.Order("created_at DESC").Find(&list).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch requests")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"requests": list})
}

func (uc *UniformController) SetStatus(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid request ID")
	}
	var req UniformStatusRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	db := database.DB.WithContext(c.UserContext())
	var record models.UniformRequest
	if err := db.First(&record, id).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch request")
	}
	if err := db.Model(&record).Update("status", req.Status).Error; err != nil {
		return respondServiceError(c, err, "Failed to update status")
	}

	if uc.notifier != nil && req.Status != models.UniformPending {
		uc.notifier.Enqueue(notifications.EnrollmentTarget(record.Enrollment), notifications.Message{
			Title: "👕 Uniform Request " + req.Status,
			Body:  record.Item + " (" + record.Size + ") is now " + req.Status,
			URL:   "/uniform.html",
		})
	}
	return utils.Success(c, "Status updated to '"+req.Status+"'", nil)
}
