package controllers

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"campusdesk_go/database"
	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/services/notifications"
	"campusdesk_go/storage"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FormField describes one input of a dynamic form.
type FormField struct {
	Label    string   `json:"label" validate:"required"`
	Type     string   `json:"type" validate:"required,oneof=text textarea number date email select radio checkbox file"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

type FormController struct {
	files    storage.FileStore
	notifier services.Notifier
}

func NewFormController(files storage.FileStore, notifier services.Notifier) *FormController {
	return &FormController{files: files, notifier: notifier}
}

var submissionTitles = map[string]string{
	models.SubmissionApproved:    "✅ Form Approved",
	models.SubmissionDisapproved: "❌ Form Disapproved",
}

type SubmissionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved disapproved"`
	Reason string `json:"reason"`
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ParseFormFields decodes and validates the fields JSON of a form definition.
func ParseFormFields(raw string) ([]FormField, error) {
	var fields []FormField
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	for i := range fields {
		fields[i].Label = strings.TrimSpace(fields[i].Label)
		fields[i].Type = strings.ToLower(strings.TrimSpace(fields[i].Type))
		if err := utils.ValidateStruct(&fields[i]); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// CreateForm takes a multipart body: title, description, target_class, fields (JSON) and optional pdfs.
func (fc *FormController) CreateForm(c *fiber.Ctx) error {
	title := utils.SanitizeString(c.FormValue("title"))
	fields, err := ParseFormFields(c.FormValue("fields", "[]"))
	if err != nil {
		return badRequest(c, "Invalid fields format")
	}
	if title == "" || len(fields) == 0 {
		return badRequest(c, "Title and fields required")
	}

	pdfs := []string{}
	if mf, err := c.MultipartForm(); err == nil {
		for _, fh := range mf.File["pdfs"] {
			if fc.files == nil {
				return utils.Error(c, fiber.StatusServiceUnavailable, "File storage is not configured")
			}
			data, err := readUpload(fh, "pdf")
			if err != nil {
				return badRequest(c, err.Error())
			}
			stored, err := fc.files.Upload(c.UserContext(), "forms/pdfs", storedName(fh.Filename), data, storage.KindRaw)
			if err != nil {
				return respondServiceError(c, err, "Failed to upload PDF")
			}
			pdfs = append(pdfs, stored.URL)
		}
	}

	fieldsJSON, _ := json.Marshal(fields)
	pdfsJSON, _ := json.Marshal(pdfs)
	form := models.Form{
		Title:       title,
		Description: c.FormValue("description"),
		Fields:      datatypes.JSON(fieldsJSON),
		PDFs:        datatypes.JSON(pdfsJSON),
		TargetClass: utils.NormalizeClass(c.FormValue("target_class")),
		Active:      true,
		CreatedBy:   middleware.ActorName(c),
	}
	if err := database.DB.WithContext(c.UserContext()).Create(&form).Error; err != nil {
		return respondServiceError(c, err, "Failed to create form")
	}

	if fc.notifier != nil {
		target := notifications.GlobalTarget()
		if form.TargetClass != "" {
			target = notifications.ClassTarget(form.TargetClass)
		}
		fc.notifier.Enqueue(target, notifications.Message{Title: "📋 New Form", Body: form.Title, URL: "/forms.html"})
	}
	return utils.SuccessMap(c, fiber.StatusCreated, "Form created successfully", fiber.Map{"form": form})
}

// ListForms returns active forms by default; staff may pass ?active=false or ?active=all.
func (fc *FormController) ListForms(c *fiber.Ctx) error {
	db := database.DB.WithContext(c.UserContext())
	q := db.Model(&models.Form{})

	claims, _ := middleware.GetCurrentClaims(c)
	staff := claims != nil && claims.IsStaff()
	switch active := c.Query("active"); {
	case staff && active == "all":
	case staff && active == "false":
		q = q.Where("active = ?", false)
	default:
		q = q.Where("active = ?", true)
	}
	if !staff && claims != nil && claims.Class != "" {
		q = q.Where("target_class = '' OR target_class = ?", claims.Class)
	}

	var forms []models.Form
	if err := q.Order("created_at DESC").Find(&forms).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch forms")
	}

	counts := map[uint]int{}
	if staff && len(forms) > 0 {
		var rows []struct {
			FormID uint
			Count  int
		}
		if err := db.Model(&models.FormSubmission{}).Select("form_id, COUNT(*) AS count").Group("form_id").Scan(&rows).Error; err != nil {
			return respondServiceError(c, err, "Failed to count submissions")
		}
		for _, r := range rows {
			counts[r.FormID] = r.Count
		}
	}

	out := make([]fiber.Map, 0, len(forms))
	for _, f := range forms {
		var fields []FormField
		_ = json.Unmarshal(f.Fields, &fields)
		item := fiber.Map{
			"id":           f.ID,
			"title":        f.Title,
			"description":  f.Description,
			"target_class": f.TargetClass,
			"active":       f.Active,
			"fields_count": len(fields),
			"created_at":   f.CreatedAt,
		}
		if staff {
			item["submissions"] = counts[f.ID]
		}
		out = append(out, item)
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"forms": out})
}

func (fc *FormController) GetForm(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid form ID")
	}
	q := database.DB.WithContext(c.UserContext()).Where("id = ?", id)
	if claims, err := middleware.GetCurrentClaims(c); err != nil || !claims.IsStaff() {
		q = q.Where("active = ?", true)
	}
	var form models.Form
	if err := q.First(&form).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch form")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"form": form})
}

func (fc *FormController) SetActive(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid form ID")
	}
	var req struct {
		Active *bool `json:"active" validate:"required"`
	}
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	res := database.DB.WithContext(c.UserContext()).Model(&models.Form{}).Where("id = ?", id).Update("active", *req.Active)
	if res.Error != nil {
		return respondServiceError(c, res.Error, "Failed to update form")
	}
	if res.RowsAffected == 0 {
		return notFound(c, "Form")
	}
	return utils.Success(c, "Form updated", fiber.Map{"active": *req.Active})
}

// Submit stores one student's answers. Text fields come from form values keyed by label,
// file fields are uploaded before the submission row is written.
func (fc *FormController) Submit(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid form ID")
	}
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil || claims.Enrollment == "" {
		return utils.Error(c, fiber.StatusForbidden, "Only students can submit forms")
	}

	db := database.DB.WithContext(c.UserContext())
	var form models.Form
	if err := db.Where("id = ? AND active = ?", id, true).First(&form).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch form")
	}
	var fields []FormField
	if err := json.Unmarshal(form.Fields, &fields); err != nil {
		return respondServiceError(c, err, "Form definition is invalid")
	}

	responses := datatypes.JSONMap{}
	files := []fiber.Map{}
	for _, field := range fields {
		if field.Type == "file" {
			fh, err := c.FormFile(field.Label)
			if err != nil {
				if field.Required {
					return badRequest(c, field.Label+" is required")
				}
				continue
			}
			if fc.files == nil {
				return utils.Error(c, fiber.StatusServiceUnavailable, "File storage is not configured")
			}
			data, err := readUpload(fh)
			if err != nil {
				return badRequest(c, err.Error())
			}
			stored, err := fc.files.Upload(c.UserContext(), "forms/submissions", storedName(fh.Filename), data, storage.KindForFile(fh.Filename))
			if err != nil {
				return respondServiceError(c, err, "Failed to upload file")
			}
			responses[field.Label] = stored.URL
			files = append(files, fiber.Map{"label": field.Label, "url": stored.URL, "public_id": stored.PublicID})
			continue
		}
		value := strings.TrimSpace(c.FormValue(field.Label))
		if value == "" && field.Required {
			return badRequest(c, field.Label+" is required")
		}
		responses[field.Label] = value
	}

	var student models.Student
	if err := db.Where("enrollment = ?", claims.Enrollment).First(&student).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return respondServiceError(c, err, "Failed to fetch student")
	}
	filesJSON, _ := json.Marshal(files)
	sub := models.FormSubmission{
		FormID:     form.ID,
		Enrollment: claims.Enrollment,
		Name:       student.Name,
		Class:      claims.Class,
		Responses:  responses,
		Files:      datatypes.JSON(filesJSON),
		Status:     models.SubmissionPending,
	}
	if err := db.Create(&sub).Error; err != nil {
		return respondServiceError(c, err, "Failed to submit form")
	}
	return utils.SuccessMap(c, fiber.StatusCreated, "Form submitted successfully", fiber.Map{"submission": sub})
}

func (fc *FormController) Submissions(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid form ID")
	}
	db := database.DB.WithContext(c.UserContext())
	var form models.Form
	if err := db.First(&form, id).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch form")
	}
	var subs []models.FormSubmission
	if err := db.Where("form_id = ?", id).Order("created_at DESC").Find(&subs).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch submissions")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{
		"form_id":           form.ID,
		"form_title":        form.Title,
		"total_submissions": len(subs),
		"submissions":       subs,
	})
}

// MySubmissions lists the caller's submissions with the form title.
func (fc *FormController) MySubmissions(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}
	var rows []struct {
		models.FormSubmission
		FormTitle string `json:"form_title"`
	}
	err = database.DB.WithContext(c.UserContext()).
		Model(&models.FormSubmission{}).
		Select("form_submissions.*, forms.title AS form_title").
		Joins("JOIN forms ON forms.id = form_submissions.form_id").
		Where("form_submissions.enrollment = ?", claims.Enrollment).
		Order("form_submissions.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch submissions")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"submissions": rows})
}

// SetSubmissionStatus approves or disapproves a submission. Disapproval needs a reason.
func (fc *FormController) SetSubmissionStatus(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid submission ID")
	}
	var req SubmissionStatusRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Status == models.SubmissionDisapproved && req.Reason == "" {
		return badRequest(c, "Reason required for disapproval")
	}

	db := database.DB.WithContext(c.UserContext())
	var sub models.FormSubmission
	if err := db.First(&sub, id).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch submission")
	}
	err := db.Model(&sub).Updates(map[string]interface{}{
		"status":      req.Status,
		"reason":      req.Reason,
		"reviewed_by": middleware.ActorName(c),
	}).Error
	if err != nil {
		return respondServiceError(c, err, "Failed to update submission")
	}

	if fc.notifier != nil {
		body := "Your form submission was " + req.Status
		if req.Reason != "" {
			body += ": " + req.Reason
		}
		fc.notifier.Enqueue(notifications.EnrollmentTarget(sub.Enrollment), notifications.Message{
			Title: submissionTitles[req.Status],
			Body:  body,
			URL:   "/forms.html",
		})
	}
	return utils.Success(c, "Submission marked as "+req.Status, nil)
}
