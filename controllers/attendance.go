package controllers

import (
	"bytes"
	"fmt"
	"time"

	"campusdesk_go/middleware"
	"campusdesk_go/services/attendance"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

type AttendanceController struct {
	svc *attendance.Service
}

func NewAttendanceController(svc *attendance.Service) *AttendanceController {
	return &AttendanceController{svc: svc}
}

type MarkAttendanceRequest struct {
	Records   map[string]string `json:"records" validate:"required,min=1"`
	LectureID string            `json:"lectureId"`
	Date      string            `json:"date"`
	Subject   string            `json:"subject"`
}

type OverrideRequest struct {
	Enrollment string `json:"enrollment" validate:"required"`
	Total      *int   `json:"total" validate:"required"`
	Present    *int   `json:"present" validate:"required"`
}

type EditAttendanceRequest struct {
	Enrollment string `json:"enrollment" validate:"required"`
	Date       string `json:"date" validate:"required"`
	Status     string `json:"status" validate:"required"`
}

// Mark saves P/A marks for one lecture.
func (ac *AttendanceController) Mark(c *fiber.Ctx) error {
	var req MarkAttendanceRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	if req.Date != "" && !utils.IsValidDate(req.Date) {
		return badRequest(c, "date must be YYYY-MM-DD")
	}

	records := make(map[string]string, len(req.Records))
	for enrollment, status := range req.Records {
		records[normalizeEnrollment(enrollment)] = status
	}
	saved, err := ac.svc.Mark(c.UserContext(), attendance.MarkRequest{
		Records:   records,
		Date:      req.Date,
		LectureID: req.LectureID,
		Subject:   req.Subject,
		MarkedBy:  middleware.ActorName(c),
	})
	if err != nil {
		return respondServiceError(c, err, "Failed to save attendance")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "Attendance saved", fiber.Map{"saved": saved})
}

// Summary returns {attendance:{total, present, percentage, source}}.
func (ac *AttendanceController) Summary(c *fiber.Ctx) error {
	summary, err := ac.svc.GetSummary(c.UserContext(), normalizeEnrollment(c.Params("enrollment")))
	if err != nil {
		return respondServiceError(c, err, "Failed to load attendance")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"attendance": summary})
}

// EditPercentage stores a manual override.
func (ac *AttendanceController) EditPercentage(c *fiber.Ctx) error {
	var req OverrideRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	summary, err := ac.svc.SetOverride(c.UserContext(), normalizeEnrollment(req.Enrollment), *req.Total, *req.Present, middleware.ActorName(c))
	if err != nil {
		return respondServiceError(c, err, "Failed to update attendance")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "Attendance updated", fiber.Map{"attendance": summary})
}

func (ac *AttendanceController) ClearOverride(c *fiber.Ctx) error {
	if err := ac.svc.ClearOverride(c.UserContext(), normalizeEnrollment(c.Params("enrollment"))); err != nil {
		return respondServiceError(c, err, "Failed to clear override")
	}
	return utils.Success(c, "Override removed", nil)
}

// Edit changes the status of a student's marks on one date.
func (ac *AttendanceController) Edit(c *fiber.Ctx) error {
	var req EditAttendanceRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	n, err := ac.svc.Edit(c.UserContext(), normalizeEnrollment(req.Enrollment), req.Date, req.Status)
	if err != nil {
		return respondServiceError(c, err, "Failed to edit attendance")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "Attendance updated", fiber.Map{"updated": n})
}

func (ac *AttendanceController) ListByClass(c *fiber.Ctx) error {
	records, err := ac.svc.ListByClass(c.UserContext(), c.Params("class"), c.Query("date"))
	if err != nil {
		return respondServiceError(c, err, "Failed to load attendance")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"records": records})
}

// Export streams the class attendance report as an xlsx workbook.
func (ac *AttendanceController) Export(c *fiber.Ctx) error {
	class := utils.NormalizeClass(c.Query("class"))
	if class == "" {
		return badRequest(c, "class is required")
	}
	report, err := ac.svc.ClassReport(c.UserContext(), class)
	if err != nil {
		return respondServiceError(c, err, "Failed to build report")
	}

	buf, err := AttendanceWorkbook(class, report)
	if err != nil {
		return respondServiceError(c, err, "Failed to build report")
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="attendance_%s_%s.xlsx"`, class, time.Now().Format("20060102")))
	return c.Send(buf.Bytes())
}

// AttendanceWorkbook renders one row per student: enrollment, name, present, total, percentage, source.
func AttendanceWorkbook(class string, report []attendance.Summary) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := class
	if sheet == "" {
		sheet = "Attendance"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	header := []interface{}{"Enrollment", "Name", "Present", "Total", "Percentage", "Source"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, s := range report {
		row := []interface{}{s.Enrollment, s.Name, s.Present, s.Total, s.Percentage, s.Source}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 22); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf, nil
}
