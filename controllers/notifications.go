package controllers

import (
	"strings"

	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services/notifications"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
)

type NotificationController struct {
	svc *notifications.Service
}

func NewNotificationController(svc *notifications.Service) *NotificationController {
	return &NotificationController{svc: svc}
}

type SaveTokenRequest struct {
	Enrollment   string `json:"enrollment"`
	Token        string `json:"token" validate:"required"`
	Kind         string `json:"kind" validate:"omitempty,oneof=fcm webpush"`
	StudentClass string `json:"studentClass"`
}

// NotifyRequest is shared by the generic and preset dispatch routes.
type NotifyRequest struct {
	Enrollment  string            `json:"enrollment"`
	Enrollments []string          `json:"enrollments"`
	Class       string            `json:"class"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	URL         string            `json:"url"`
	Data        map[string]string `json:"data"`
}

func (r NotifyRequest) enrollments() []string {
	list := make([]string, 0, len(r.Enrollments)+1)
	seen := make(map[string]bool)
	for _, e := range append([]string{r.Enrollment}, r.Enrollments...) {
		e = normalizeEnrollment(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		list = append(list, e)
	}
	return list
}

// audience says how a preset picks its recipients.
type audience int

const (
	audienceStudents audience = iota
	audienceClassOrAll
	audienceAll
)

type notifyPreset struct {
	title        string
	body         string
	url          string
	audience     audience
	needsContent bool
}

var notifyPresets = map[string]notifyPreset{
	"attendance":  {title: "Attendance Update", body: "Your attendance has been updated", url: "/attendance.html", audience: audienceStudents},
	"marks":       {title: "Marks Update", body: "Your marks have been updated", url: "/marks.html", audience: audienceStudents},
	"fine":        {title: "Fine Update", url: "/fine.html", audience: audienceStudents},
	"notices":     {url: "/notices.html", audience: audienceClassOrAll},
	"assignments": {url: "/assignments.html", audience: audienceClassOrAll, needsContent: true},
	"exams":       {url: "/exams.html", audience: audienceClassOrAll},
	"bus":         {title: "Bus Route Update", body: "New bus route PDF uploaded", url: "/bus-route.html", audience: audienceAll},
	"events":      {title: "New Event Posted", url: "/events.html", audience: audienceAll},
}

func (p notifyPreset) message(req NotifyRequest) notifications.Message {
	msg := notifications.Message{Title: req.Title, Body: req.Body, URL: req.URL, Data: req.Data}
	if msg.Title == "" {
		msg.Title = p.title
	}
	if msg.Body == "" {
		msg.Body = p.body
	}
	if msg.URL == "" {
		msg.URL = p.url
	}
	return msg
}

// SaveToken upserts the caller's push token. Students may only register their own enrollment.
func (nc *NotificationController) SaveToken(c *fiber.Ctx) error {
	var req SaveTokenRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	enrollment := normalizeEnrollment(req.Enrollment)
	if claims, err := middleware.GetCurrentClaims(c); err == nil && claims.Role == models.RoleStudent {
		if enrollment != "" && enrollment != claims.Enrollment {
			return utils.Error(c, fiber.StatusForbidden, "Access denied")
		}
		enrollment = claims.Enrollment
		if req.StudentClass == "" {
			req.StudentClass = claims.Class
		}
	}
	if enrollment == "" {
		return badRequest(c, "Missing token or enrollment")
	}

	token := &models.PushToken{
		Enrollment:   enrollment,
		Token:        strings.TrimSpace(req.Token),
		Kind:         req.Kind,
		StudentClass: req.StudentClass,
	}
	if err := nc.svc.SaveToken(c.UserContext(), token); err != nil {
		return respondServiceError(c, err, "Failed to save token")
	}
	return utils.Success(c, "Token saved", nil)
}

// Notify serves POST /notify/:kind. enrollment, class and global are generic targets;
// any other kind names a preset.
func (nc *NotificationController) Notify(c *fiber.Ctx) error {
	switch c.Params("kind") {
	case models.TargetEnrollment, models.TargetClass, models.TargetGlobal:
		return nc.NotifyTarget(c)
	}
	return nc.NotifyPreset(c)
}

// NotifyTarget sends synchronously to one enrollment list, one class or everyone.
func (nc *NotificationController) NotifyTarget(c *fiber.Ctx) error {
	var req NotifyRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	if req.Title == "" || req.Body == "" {
		return badRequest(c, "Title and body are required")
	}
	msg := notifications.Message{Title: req.Title, Body: req.Body, URL: req.URL, Data: req.Data}
	if msg.URL == "" {
		msg.URL = "/"
	}

	switch c.Params("kind") {
	case models.TargetEnrollment:
		list := req.enrollments()
		if len(list) == 0 {
			return badRequest(c, "No enrollments provided")
		}
		return nc.sendToStudents(c, list, msg)
	case models.TargetClass:
		if utils.NormalizeClass(req.Class) == "" {
			return badRequest(c, "class is required")
		}
		return nc.send(c, notifications.ClassTarget(req.Class), msg)
	case models.TargetGlobal:
		return nc.send(c, notifications.GlobalTarget(), msg)
	}
	return notFound(c, "Notification target")
}

// NotifyPreset fills title, body and url from the named preset unless the request overrides them.
func (nc *NotificationController) NotifyPreset(c *fiber.Ctx) error {
	preset, ok := notifyPresets[c.Params("kind")]
	if !ok {
		return notFound(c, "Notification preset")
	}
	var req NotifyRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	if preset.needsContent && (req.Title == "" || req.Body == "") {
		return badRequest(c, "Title and body are required")
	}
	msg := preset.message(req)

	switch preset.audience {
	case audienceStudents:
		list := req.enrollments()
		if len(list) == 0 {
			return badRequest(c, "No enrollments provided")
		}
		return nc.sendToStudents(c, list, msg)
	case audienceClassOrAll:
		if utils.NormalizeClass(req.Class) != "" {
			return nc.send(c, notifications.ClassTarget(req.Class), msg)
		}
	}
	return nc.send(c, notifications.GlobalTarget(), msg)
}

func (nc *NotificationController) send(c *fiber.Ctx, target notifications.Target, msg notifications.Message) error {
	res, err := nc.svc.Send(c.UserContext(), target, msg)
	if err != nil {
		return respondServiceError(c, err, "Failed to send notification")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{
		"success_count": res.SuccessCount,
		"failure_count": res.FailureCount,
	})
}

func (nc *NotificationController) sendToStudents(c *fiber.Ctx, enrollments []string, msg notifications.Message) error {
	var total notifications.Result
	for _, e := range enrollments {
		res, err := nc.svc.SendToEnrollment(c.UserContext(), e, msg)
		if err != nil {
			return respondServiceError(c, err, "Failed to send notification")
		}
		total = total.Add(res)
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{
		"success_count": total.SuccessCount,
		"failure_count": total.FailureCount,
		"recipients":    len(enrollments),
	})
}

// Feed returns global, class and personal notifications for ?enrollment&class.
// Students always get the feed of their own enrollment and class.
func (nc *NotificationController) Feed(c *fiber.Ctx) error {
	enrollment := normalizeEnrollment(c.Query("enrollment"))
	class := c.Query("class")
	if claims, err := middleware.GetCurrentClaims(c); err == nil && claims.Role == models.RoleStudent {
		enrollment = claims.Enrollment
		class = claims.Class
	}
	if enrollment == "" {
		return badRequest(c, "Enrollment required")
	}

	list, err := nc.svc.Feed(c.UserContext(), enrollment, class)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch notifications")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"notifications": list})
}

func (nc *NotificationController) DeleteLog(c *fiber.Ctx) error {
	deleted, err := nc.svc.DeleteLog(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "Failed to delete notification")
	}
	if !deleted {
		return notFound(c, "Notification")
	}
	return utils.Success(c, "Notification deleted", nil)
}

// ClearAll hides the caller's current feed.
func (nc *NotificationController) ClearAll(c *fiber.Ctx) error {
	var req struct {
		Enrollment string `json:"enrollment"`
	}
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	enrollment := normalizeEnrollment(req.Enrollment)
	if claims, err := middleware.GetCurrentClaims(c); err == nil && claims.Role == models.RoleStudent {
		enrollment = claims.Enrollment
	}
	if enrollment == "" {
		return badRequest(c, "Enrollment required")
	}
	if err := nc.svc.ClearFeed(c.UserContext(), enrollment); err != nil {
		return respondServiceError(c, err, "Failed to clear notifications")
	}
	return utils.Success(c, "Notifications cleared", nil)
}
