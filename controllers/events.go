package controllers

import (
	"campusdesk_go/database"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/services/notifications"
	"campusdesk_go/storage"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type EventController struct {
	files    storage.FileStore
	notifier services.Notifier
}

func NewEventController(files storage.FileStore, notifier services.Notifier) *EventController {
	return &EventController{files: files, notifier: notifier}
}

func (ec *EventController) GetEvents(c *fiber.Ctx) error {
	var events []models.Event
	if err := database.DB.WithContext(c.UserContext()).Order("date DESC, created_at DESC").Find(&events).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch events")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"events": events})
}

func (ec *EventController) GetEvent(c *fiber.Ctx) error {
	var event models.Event
	if err := database.DB.WithContext(c.UserContext()).Where("code = ?", c.Params("code")).First(&event).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch event")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"event": event})
}

// CreateEvent accepts a multipart form with title, description, date, venue and an image file.
// A ready image URL may be sent in the image field instead of a file.
func (ec *EventController) CreateEvent(c *fiber.Ctx) error {
	title := utils.SanitizeString(c.FormValue("title"))
	description := c.FormValue("description")
	if title == "" || description == "" {
		return badRequest(c, "title and description are required")
	}
	date := c.FormValue("date")
	if date != "" && !utils.IsValidDate(date) {
		return badRequest(c, "date must be YYYY-MM-DD")
	}

	event := models.Event{
		Code:        utils.GenerateCode("E"),
		Title:       title,
		Description: description,
		Date:        date,
		Venue:       utils.SanitizeString(c.FormValue("venue")),
		ImageURL:    c.FormValue("image"),
	}

	if fh, err := c.FormFile("image"); err == nil {
		if ec.files == nil {
			return utils.Error(c, fiber.StatusServiceUnavailable, "File storage is not configured")
		}
		data, err := readUpload(fh, imageExtensions...)
		if err != nil {
			return badRequest(c, err.Error())
		}
		stored, err := ec.files.Upload(c.UserContext(), "events", storedName(fh.Filename), data, storage.KindImage)
		if err != nil {
			return respondServiceError(c, err, "Failed to upload image")
		}
		event.ImageURL, event.ImageID = stored.URL, stored.PublicID
	}
	if event.ImageURL == "" {
		return badRequest(c, "image is required")
	}

	if err := database.DB.WithContext(c.UserContext()).Create(&event).Error; err != nil {
		return respondServiceError(c, err, "Failed to create event")
	}

	ec.notifier.Enqueue(notifications.GlobalTarget(), notifications.Message{
		Title: "🎉 New Event",
		Body:  event.Title,
		URL:   "/events.html",
		Data:  map[string]string{"event": event.Code},
	})
	return utils.SuccessMap(c, fiber.StatusCreated, "Event posted", fiber.Map{"eventId": event.Code, "event": event})
}

// DeleteEvent removes the event and its uploaded image.
func (ec *EventController) DeleteEvent(c *fiber.Ctx) error {
	db := database.DB.WithContext(c.UserContext())
	var event models.Event
	if err := db.Where("code = ?", c.Params("code")).First(&event).Error; err != nil {
		return respondServiceError(c, err, "Failed to fetch event")
	}
	if err := db.Delete(&event).Error; err != nil {
		return respondServiceError(c, err, "Failed to delete event")
	}
	if event.ImageID != "" && ec.files != nil {
		if err := ec.files.Delete(c.UserContext(), event.ImageID, storage.KindImage); err != nil {
			logrus.WithError(err).WithField("public_id", event.ImageID).Warn("failed to delete event image")
		}
	}
	return utils.Success(c, "Event deleted", nil)
}
