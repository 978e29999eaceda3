package controllers

import (
	"campusdesk_go/services"
	"campusdesk_go/services/attendance"
	"campusdesk_go/services/fines"
	"campusdesk_go/services/notifications"
	"campusdesk_go/services/uploads"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrDuplicate = errors.New("already exists")
	ErrNotFound  = errors.New("not found")
)

// statusForError maps service sentinels to HTTP status codes. Unknown errors are 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, fines.ErrNotFound),
		errors.Is(err, uploads.ErrJobNotFound),
		errors.Is(err, services.ErrArchiveNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrDuplicate),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, fines.ErrAlreadyPaid):
		return fiber.StatusConflict
	case errors.Is(err, attendance.ErrInvalidOverride),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, fines.ErrInvalidFine),
		errors.Is(err, fines.ErrInvalidPayment),
		errors.Is(err, fines.ErrInvalidStatus),
		errors.Is(err, notifications.ErrInvalidTarget),
		errors.Is(err, uploads.ErrEmptyFile):
		return fiber.StatusBadRequest
	case errors.Is(err, fines.ErrCheckoutDisabled),
		errors.Is(err, uploads.ErrClosed),
		errors.Is(err, services.ErrLineDisabled),
		errors.Is(err, services.ErrArchiveDisabled),
		errors.Is(err, services.ErrCacheDisabled):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// respondServiceError writes the envelope for err. Client errors carry the sentinel text;
// server errors are logged and answered with fallback.
func respondServiceError(c *fiber.Ctx, err error, fallback string) error {
	status := statusForError(err)
	if status == fiber.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error(fallback)
		return utils.Error(c, status, fallback)
	}
	return utils.Error(c, status, errors.Cause(err).Error())
}

func notFound(c *fiber.Ctx, what string) error {
	return utils.Error(c, fiber.StatusNotFound, what+" not found")
}

func badRequest(c *fiber.Ctx, message string) error {
	return utils.Error(c, fiber.StatusBadRequest, message)
}
