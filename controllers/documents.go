package controllers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"campusdesk_go/database"
	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/services/notifications"
	"campusdesk_go/services/uploads"
	"campusdesk_go/storage"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var documentLabels = map[string]string{
	models.DocumentTimetable:       "Timetable",
	models.DocumentNotes:           "Notes",
	models.DocumentBus:             "Bus Route",
	models.DocumentAttendanceSheet: "Attendance Sheet",
}

// DocumentController stores class PDFs. The upload itself runs on the upload manager; the
// Document row stays "uploading" until the job finishes.
type DocumentController struct {
	uploads  *uploads.Manager
	files    storage.FileStore
	notifier services.Notifier
}

func NewDocumentController(manager *uploads.Manager, files storage.FileStore, notifier services.Notifier) *DocumentController {
	return &DocumentController{
		uploads:  manager,
		files:    files,
		notifier: notifier,
	}
}

func documentKind(c *fiber.Ctx) (string, bool) {
	kind := strings.ToLower(c.Params("kind"))
	_, ok := documentLabels[kind]
	return kind, ok
}

// Upload accepts a multipart PDF plus metadata and answers 202 with the document and its job.
func (dc *DocumentController) Upload(c *fiber.Ctx) error {
	kind, ok := documentKind(c)
	if !ok {
		return notFound(c, "Document type")
	}
	if dc.files == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "File storage is not configured")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	data, err := readUpload(fh, "pdf")
	if err != nil {
		return badRequest(c, err.Error())
	}

	doc := models.Document{
		Kind:       kind,
		Title:      utils.SanitizeString(c.FormValue("title")),
		Class:      utils.NormalizeClass(c.FormValue("class")),
		Year:       strings.TrimSpace(c.FormValue("year")),
		Branch:     strings.ToUpper(strings.TrimSpace(c.FormValue("branch"))),
		Subject:    utils.SanitizeString(c.FormValue("subject")),
		Week:       strings.TrimSpace(c.FormValue("week")),
		FileName:   fh.Filename,
		Status:     models.DocumentUploading,
		UploadedBy: middleware.ActorName(c),
	}
	if doc.Title == "" {
		doc.Title = fh.Filename
	}
	if err := database.DB.WithContext(c.UserContext()).Create(&doc).Error; err != nil {
		return respondServiceError(c, err, "Failed to save document")
	}

	job, err := dc.uploads.Submit(c.UserContext(), uploads.Request{
		Name:   storedName(fh.Filename),
		Folder: "documents/" + kind,
		Kind:   storage.KindRaw,
		Data:   data,
	}, func(j uploads.Job) { dc.finish(doc, j) })
	if err != nil {
		markDocumentFailed(c.UserContext(), database.DB, doc.ID, err)
		return respondServiceError(c, err, "Failed to queue upload")
	}
	if err := database.DB.WithContext(c.UserContext()).Model(&doc).Update("upload_job_id", job.ID).Error; err != nil {
		logrus.WithError(err).WithField("document_id", doc.ID).Warn("failed to record upload job")
	}
	doc.UploadJobID = job.ID

	return utils.SuccessMap(c, fiber.StatusAccepted, "Upload started", fiber.Map{"document": doc, "job": job})
}

// markDocumentFailed stores cause on the document. A failed write is only logged.
func markDocumentFailed(ctx context.Context, db *gorm.DB, id uint, cause error) {
	err := db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.DocumentFailed, "error": cause.Error()}).Error
	if err != nil {
		logrus.WithError(err).WithField("document_id", id).Error("failed to mark document as failed")
	}
}

// finish runs on the upload worker once the job is done or failed.
func (dc *DocumentController) finish(doc models.Document, job uploads.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	updates := map[string]interface{}{"status": models.DocumentReady, "url": job.URL, "public_id": job.PublicID, "error": ""}
	if job.Status == uploads.StatusFailed {
		updates = map[string]interface{}{"status": models.DocumentFailed, "error": job.Error}
	}
	if err := database.DB.WithContext(ctx).Model(&models.Document{}).Where("id = ?", doc.ID).Updates(updates).Error; err != nil {
		logrus.WithError(err).WithField("document_id", doc.ID).Error("failed to store upload result")
		return
	}
	if job.Status == uploads.StatusDone {
		dc.announce(doc)
	}
}

func (dc *DocumentController) announce(doc models.Document) {
	if dc.notifier == nil {
		return
	}
	switch doc.Kind {
	case models.DocumentBus:
		dc.notifier.Enqueue(notifications.GlobalTarget(), notifications.Message{
			Title: "Bus Route Update",
			Body:  "New bus route PDF uploaded",
			URL:   "/bus-route.html",
		})
	case models.DocumentTimetable, models.DocumentNotes:
		if doc.Class == "" {
			return
		}
		dc.notifier.Enqueue(notifications.ClassTarget(doc.Class), notifications.Message{
			Title: "📄 New " + documentLabels[doc.Kind],
			Body:  doc.Title,
			URL:   "/" + doc.Kind + ".html",
		})
	}
}

// List filters by class, year, branch, subject and week. Pending and failed uploads are only shown to staff.
func (dc *DocumentController) List(c *fiber.Ctx) error {
	kind, ok := documentKind(c)
	if !ok {
		return notFound(c, "Document type")
	}
	q := database.DB.WithContext(c.UserContext()).Where("kind = ?", kind)
	if v := utils.NormalizeClass(c.Query("class")); v != "" {
		q = q.Where("class = ?", v)
	}
	if v := c.Query("year"); v != "" {
		q = q.Where("year = ?", v)
	}
	if v := c.Query("branch"); v != "" {
		q = q.Where("branch = ?", strings.ToUpper(v))
	}
	if v := c.Query("subject"); v != "" {
		q = q.Where("subject = ?", v)
	}
	if v := c.Query("week"); v != "" {
		q = q.Where("week = ?", v)
	}
	if claims, err := middleware.GetCurrentClaims(c); err != nil || !claims.IsStaff() {
		q = q.Where("status = ?", models.DocumentReady)
	}

	var docs []models.Document
	if err := q.Order("created_at DESC").Find(&docs).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch documents")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"documents": docs})
}

func (dc *DocumentController) find(c *fiber.Ctx) (models.Document, error) {
	kind, ok := documentKind(c)
	if !ok {
		return models.Document{}, ErrNotFound
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return models.Document{}, ErrNotFound
	}
	var doc models.Document
	err = database.DB.WithContext(c.UserContext()).Where("id = ? AND kind = ?", id, kind).First(&doc).Error
	return doc, err
}

func (dc *DocumentController) Get(c *fiber.Ctx) error {
	doc, err := dc.find(c)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch document")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"document": doc})
}

// Delete removes the row and, best effort, the stored file.
func (dc *DocumentController) Delete(c *fiber.Ctx) error {
	doc, err := dc.find(c)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch document")
	}
	if err := database.DB.WithContext(c.UserContext()).Delete(&doc).Error; err != nil {
		return respondServiceError(c, err, "Failed to delete document")
	}
	if doc.PublicID != "" && dc.files != nil {
		if err := dc.files.Delete(c.UserContext(), doc.PublicID, storage.KindRaw); err != nil {
			logrus.WithError(err).WithField("public_id", doc.PublicID).Warn("failed to delete stored document")
		}
	}
	return utils.Success(c, "Document deleted", nil)
}

// MarkUpdated flags a weekly attendance sheet as entered into the attendance records.
func (dc *DocumentController) MarkUpdated(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return badRequest(c, "Invalid document ID")
	}
	res := database.DB.WithContext(c.UserContext()).Model(&models.Document{}).
		Where("id = ? AND kind = ?", id, models.DocumentAttendanceSheet).
		Update("updated", true)
	if res.Error != nil {
		return respondServiceError(c, res.Error, "Failed to update document")
	}
	if res.RowsAffected == 0 {
		return notFound(c, "Attendance sheet")
	}
	return utils.Success(c, "Marked as updated", nil)
}

// UploadStatus reports an upload job by id.
func (dc *DocumentController) UploadStatus(c *fiber.Ctx) error {
	job, err := dc.uploads.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch upload")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"job": job})
}
