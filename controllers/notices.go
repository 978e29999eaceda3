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
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const noticeTargetAll = "all"

// ClassMessenger posts a text into the chat group bound to a class.
type ClassMessenger interface {
	SendToClass(ctx context.Context, class, message string) (bool, error)
}

type NoticeController struct {
	notifier services.Notifier
	line     ClassMessenger
}

func NewNoticeController(notifier services.Notifier, line ClassMessenger) *NoticeController {
	return &NoticeController{notifier: notifier, line: line}
}

type NoticeRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Message string `json:"message" validate:"required"`
	Target  string `json:"target"`
	Sender  string `json:"sender"`
}

// NoticeView is a notice with the read flag of the requesting student.
type NoticeView struct {
	models.Notice
	IsRead bool `json:"is_read"`
}

func noticeTarget(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, noticeTargetAll) {
		return noticeTargetAll
	}
	return utils.NormalizeClass(raw)
}

// CreateNotice stores the notice, pushes it to its audience and mirrors it to the class LINE group.
func (nc *NoticeController) CreateNotice(c *fiber.Ctx) error {
	var req NoticeRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	sender := strings.TrimSpace(req.Sender)
	if sender == "" {
		sender = middleware.ActorName(c)
	}
	notice := models.Notice{
		Title:   utils.SanitizeString(req.Title),
		Message: req.Message,
		Target:  noticeTarget(req.Target),
		Sender:  sender,
	}
	if err := database.DB.WithContext(c.UserContext()).Create(&notice).Error; err != nil {
		return respondServiceError(c, err, "Failed to add notice")
	}

	target := notifications.GlobalTarget()
	if notice.Target != noticeTargetAll {
		target = notifications.ClassTarget(notice.Target)
	}
	nc.notifier.Enqueue(target, notifications.Message{
		Title: "📢 " + notice.Title,
		Body:  notice.Message,
		URL:   "/notices.html",
	})

	postedToLine := false
	if nc.line != nil && notice.Target != noticeTargetAll {
		ok, err := nc.line.SendToClass(c.UserContext(), notice.Target, services.NoticeText(notice.Title, notice.Message, notice.Sender))
		if err != nil {
			logrus.WithError(err).WithField("class", notice.Target).Warn("failed to post notice to LINE group")
		}
		postedToLine = ok && err == nil
	}

	return utils.SuccessMap(c, fiber.StatusCreated, "Notice added successfully", fiber.Map{
		"data": notice,
		"line": postedToLine,
	})
}

// noticeScope returns the notices visible to a class, or all notices when class is empty.
func noticeScope(db *gorm.DB, class string) *gorm.DB {
	if class == "" {
		return db
	}
	return db.Where("target IN ?", []string{class, noticeTargetAll})
}

func (nc *NoticeController) GetNotices(c *fiber.Ctx) error {
	db := database.DB.WithContext(c.UserContext())
	var notices []models.Notice
	if err := noticeScope(db, classScope(c)).Order("created_at DESC").Find(&notices).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch notices")
	}

	read := map[uint]bool{}
	if enrollment := normalizeEnrollment(c.Query("enrollment")); enrollment != "" && len(notices) > 0 {
		ids := make([]uint, 0, len(notices))
		for _, n := range notices {
			ids = append(ids, n.ID)
		}
		var receipts []models.NoticeRead
		if err := db.Where("enrollment = ? AND notice_id IN ?", enrollment, ids).Find(&receipts).Error; err != nil {
			return respondServiceError(c, err, "Failed to fetch notices")
		}
		for _, r := range receipts {
			read[r.NoticeID] = true
		}
	}

	out := make([]NoticeView, 0, len(notices))
	for _, n := range notices {
		out = append(out, NoticeView{Notice: n, IsRead: read[n.ID]})
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"notices": out})
}

// MarkRead records a read receipt. Marking twice is a no-op.
func (nc *NoticeController) MarkRead(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return badRequest(c, "Invalid notice ID")
	}
	enrollment := readerEnrollment(c)
	if enrollment == "" {
		return badRequest(c, "enrollment is required")
	}

	db := database.DB.WithContext(c.UserContext())
	var notice models.Notice
	if err := db.First(&notice, uint(id)).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch notice")
	}
	receipt := models.NoticeRead{NoticeID: notice.ID, Enrollment: enrollment, ReadAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipt).Error; err != nil {
		return respondServiceError(c, err, "Failed to mark notice")
	}
	return utils.Success(c, "Notice marked as read", nil)
}

func (nc *NoticeController) UnreadCount(c *fiber.Ctx) error {
	enrollment := readerEnrollment(c)
	if enrollment == "" {
		return badRequest(c, "enrollment is required")
	}
	db := database.DB.WithContext(c.UserContext())
	var count int64
	err := noticeScope(db.Model(&models.Notice{}), classScope(c)).
		Where("id NOT IN (?)", db.Model(&models.NoticeRead{}).Select("notice_id").Where("enrollment = ?", enrollment)).
		Count(&count).Error
	if err != nil {
		return respondServiceError(c, err, "Failed to count notices")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"unread_count": count})
}

func (nc *NoticeController) DeleteNotice(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return badRequest(c, "Invalid notice ID")
	}
	err = database.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Notice{}, uint(id))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("notice_id = ?", id).Delete(&models.NoticeRead{}).Error
	})
	if err != nil {
		return respondServiceError(c, err, "Failed to delete notice")
	}
	return utils.Success(c, "Notice deleted successfully", nil)
}

// readerEnrollment is the caller's own enrollment for students, else ?enrollment= or the body field.
func readerEnrollment(c *fiber.Ctx) string {
	if claims, ok := c.Locals("claims").(*middleware.Claims); ok && claims.Role == models.RoleStudent {
		return normalizeEnrollment(claims.Enrollment)
	}
	if e := c.Query("enrollment"); e != "" {
		return normalizeEnrollment(e)
	}
	var body struct {
		Enrollment string `json:"enrollment"`
	}
	_ = c.BodyParser(&body)
	return normalizeEnrollment(body.Enrollment)
}
