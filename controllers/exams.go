package controllers

import (
	"fmt"

	"campusdesk_go/database"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/services/notifications"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
)

type ExamController struct {
	notifier services.Notifier
}

func NewExamController(notifier services.Notifier) *ExamController {
	return &ExamController{notifier: notifier}
}

type ExamRequest struct {
	ExamName string `json:"exam_name" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
	Date     string `json:"date" validate:"required"`
	Time     string `json:"time"`
	Room     string `json:"room" validate:"required"`
	Class    string `json:"class" validate:"required"`
}

func (ec *ExamController) CreateExam(c *fiber.Ctx) error {
	var req ExamRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	if !utils.IsValidDate(req.Date) {
		return badRequest(c, "date must be YYYY-MM-DD")
	}

	exam := models.Exam{
		Code:     utils.GenerateCode("EX"),
		ExamName: utils.SanitizeString(req.ExamName),
		Subject:  utils.SanitizeString(req.Subject),
		Date:     req.Date,
		Time:     req.Time,
		Room:     utils.SanitizeString(req.Room),
		Class:    utils.NormalizeClass(req.Class),
	}
	if err := database.DB.WithContext(c.UserContext()).Create(&exam).Error; err != nil {
		return respondServiceError(c, err, "Failed to create exam")
	}

	ec.notifier.Enqueue(notifications.ClassTarget(exam.Class), notifications.Message{
		Title: "🧪 Exam Scheduled",
		Body:  fmt.Sprintf("%s %s on %s in room %s", exam.Subject, exam.ExamName, exam.Date, exam.Room),
		URL:   "/exams.html",
	})
	return utils.SuccessWithCode(c, fiber.StatusCreated, "Exam created", exam)
}

func (ec *ExamController) GetExams(c *fiber.Ctx) error {
	query := database.DB.WithContext(c.UserContext())
	if class := classScope(c); class != "" {
		query = query.Where("class = ?", class)
	}
	var exams []models.Exam
	if err := query.Order("date ASC, time ASC").Find(&exams).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch exams")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"exams": exams})
}

func (ec *ExamController) DeleteExam(c *fiber.Ctx) error {
	res := database.DB.WithContext(c.UserContext()).Where("code = ?", c.Params("code")).Delete(&models.Exam{})
	if res.Error != nil {
		return respondServiceError(c, res.Error, "Failed to delete exam")
	}
	if res.RowsAffected == 0 {
		return notFound(c, "Exam")
	}
	return utils.Success(c, "Exam deleted", nil)
}
