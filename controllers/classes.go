package controllers

import (
	"errors"
	"strconv"
	"strings"

	"campusdesk_go/database"
	"campusdesk_go/models"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ClassController struct{}

type CreateClassRequest struct {
	Branch  string `json:"branch" validate:"required"`
	Year    string `json:"year" validate:"required"`
	Section string `json:"section" validate:"required"`
	// Optional enrollment range to create together with the class.
	Start string `json:"start"`
	End   string `json:"end"`
}

// ListClasses returns every class with its student count.
func (cc *ClassController) ListClasses(c *fiber.Ctx) error {
	db := database.DB.WithContext(c.UserContext())
	var classes []models.ClassGroup
	if err := db.Order("name ASC").Find(&classes).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch classes")
	}

	var counts []struct {
		Class string
		Count int
	}
	if err := db.Model(&models.Student{}).Select("class, COUNT(*) AS count").Group("class").Scan(&counts).Error; err != nil {
		return respondServiceError(c, err, "Failed to count students")
	}
	byClass := make(map[string]int, len(counts))
	for _, row := range counts {
		byClass[row.Class] = row.Count
	}

	out := make([]fiber.Map, 0, len(classes))
	for _, cl := range classes {
		out = append(out, fiber.Map{
			"id":            cl.ID,
			"name":          cl.Name,
			"branch":        cl.Branch,
			"year":          cl.Year,
			"section":       cl.Section,
			"line_group_id": cl.LineGroupID,
			"students":      byClass[cl.Name],
		})
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"classes": out})
}

// CreateClass creates the class and, when a range is given, its students in one transaction.
func (cc *ClassController) CreateClass(c *fiber.Ctx) error {
	var req CreateClassRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	var enrollments []string
	if req.Start != "" || req.End != "" {
		var err error
		enrollments, err = utils.EnrollmentRange(normalizeEnrollment(req.Start), normalizeEnrollment(req.End))
		if err != nil {
			return badRequest(c, err.Error())
		}
	}

	class := models.ClassGroup{
		Name:    utils.NormalizeClass(req.Branch + req.Year + req.Section),
		Branch:  strings.ToUpper(strings.TrimSpace(req.Branch)),
		Year:    strings.TrimSpace(req.Year),
		Section: strings.ToUpper(strings.TrimSpace(req.Section)),
	}

	var added int64
	err := database.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var existing models.ClassGroup
		if err := tx.Where("name = ?", class.Name).First(&existing).Error; err == nil {
			return ErrDuplicate
		}
		if err := tx.Create(&class).Error; err != nil {
			return err
		}
		n, err := createStudents(tx, enrollments, class.Branch, class.Section, class.Year, class.Name)
		added = n
		return err
	})
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return utils.Error(c, fiber.StatusConflict, "Class-section already exists")
	}
	if err != nil {
		return respondServiceError(c, err, "Failed to create class")
	}
	return utils.SuccessMap(c, fiber.StatusCreated, "Class-section "+class.Name+" created", fiber.Map{
		"class":          class,
		"students_added": added,
	})
}

// SetLineGroup binds a class to a LINE group, or unbinds it when line_group_id is empty.
func (cc *ClassController) SetLineGroup(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return badRequest(c, "Invalid class ID")
	}
	var req struct {
		LineGroupID string `json:"line_group_id"`
	}
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	db := database.DB.WithContext(c.UserContext())
	if req.LineGroupID != "" {
		var group models.LineGroup
		if err := db.Where("group_id = ?", req.LineGroupID).First(&group).Error; err != nil {
			return badRequest(c, "Unknown LINE group")
		}
	}
	res := db.Model(&models.ClassGroup{}).Where("id = ?", id).Update("line_group_id", req.LineGroupID)
	if res.Error != nil {
		return respondServiceError(c, res.Error, "Failed to update class")
	}
	if res.RowsAffected == 0 {
		return notFound(c, "Class")
	}
	return utils.Success(c, "LINE group updated", nil)
}

// ListLineGroups lists the LINE groups the bot has joined.
func (cc *ClassController) ListLineGroups(c *fiber.Ctx) error {
	var groups []models.LineGroup
	if err := database.DB.WithContext(c.UserContext()).Order("group_name ASC").Find(&groups).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch LINE groups")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"line_groups": groups})
}
