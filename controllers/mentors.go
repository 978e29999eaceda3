package controllers

import (
	"regexp"

	"campusdesk_go/database"
	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm/clause"
)

type MentorController struct{}

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type SalaryRequest struct {
	Month  string   `json:"month" validate:"required"`
	Amount *float64 `json:"amount" validate:"required,gte=0"`
	Status string   `json:"status" validate:"omitempty,oneof=Pending Paid"`
}

func (mc *MentorController) ListMentors(c *fiber.Ctx) error {
	var mentors []models.Mentor
	if err := database.DB.WithContext(c.UserContext()).Order("name ASC").Find(&mentors).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch mentors")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"mentors": mentors})
}

// SetSalary upserts the salary of one mentor for one month (YYYY-MM).
func (mc *MentorController) SetSalary(c *fiber.Ctx) error {
	var req SalaryRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	if !monthPattern.MatchString(req.Month) {
		return badRequest(c, "month must be YYYY-MM")
	}

	db := database.DB.WithContext(c.UserContext())
	mentorID := c.Params("mentorId")
	var mentor models.Mentor
	if err := db.Where("mentor_id = ?", mentorID).First(&mentor).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch mentor")
	}

	salary := models.MentorSalary{MentorID: mentor.MentorID, Month: req.Month, Amount: *req.Amount, Status: req.Status}
	if salary.Status == "" {
		salary.Status = "Pending"
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mentor_id"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "status", "updated_at"}),
	}).Create(&salary).Error
	if err != nil {
		return respondServiceError(c, err, "Failed to save salary")
	}

	middleware.LogActivity(c, "UPDATE", "mentor_salary", mentor.MentorID, fiber.Map{"month": req.Month, "amount": *req.Amount})
	return utils.SuccessWithCode(c, fiber.StatusOK, "Salary info saved", salary)
}

// GetSalary lists salary records newest month first. A mentor may only read their own.
func (mc *MentorController) GetSalary(c *fiber.Ctx) error {
	mentorID := c.Params("mentorId")
	if claims, err := middleware.GetCurrentClaims(c); err == nil && claims.Role == models.RoleMentor && claims.MentorID != mentorID {
		return utils.Error(c, fiber.StatusForbidden, "Access denied")
	}

	var records []models.MentorSalary
	if err := database.DB.WithContext(c.UserContext()).Where("mentor_id = ?", mentorID).Order("month DESC").Find(&records).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch salary")
	}
	if len(records) == 0 {
		return utils.Error(c, fiber.StatusNotFound, "No salary record found")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"salary": records})
}
