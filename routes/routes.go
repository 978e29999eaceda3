package routes

import (
	"time"

	"campusdesk_go/controllers"
	"campusdesk_go/handlers"
	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/services/attendance"
	"campusdesk_go/services/fines"
	"campusdesk_go/services/notifications"
	"campusdesk_go/services/uploads"
	"campusdesk_go/services/websocket"
	"campusdesk_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Deps are the long-lived services the handlers are built on.
type Deps struct {
	Hub           *websocket.Hub
	Notifications *notifications.Service
	Attendance    *attendance.Service
	Fines         *fines.Service
	Uploads       *uploads.Manager
	Files         storage.FileStore
	Line          controllers.ClassMessenger
	LogArchive    *services.LogArchiveService
	Health        *services.HealthService
	Payments      *handlers.PaymentWebhookHandler
	LineWebhook   *handlers.LineWebhookHandler
}

func loginLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        10,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Too many login attempts, try again later",
			})
		},
	})
}

// SetupRoutes registers every route. Public routes come first so the JWT middleware of the
// protected groups never runs for them.
func SetupRoutes(app *fiber.App, d Deps) {
	authController := &controllers.AuthController{}
	studentController := &controllers.StudentController{}
	classController := &controllers.ClassController{}
	mentorController := &controllers.MentorController{}
	attendanceController := controllers.NewAttendanceController(d.Attendance)
	assignmentController := controllers.NewAssignmentController(d.Notifications)
	examController := controllers.NewExamController(d.Notifications)
	noticeController := controllers.NewNoticeController(d.Notifications, d.Line)
	eventController := controllers.NewEventController(d.Files, d.Notifications)
	fineController := controllers.NewFineController(d.Fines)
	notificationController := controllers.NewNotificationController(d.Notifications)
	documentController := controllers.NewDocumentController(d.Uploads, d.Files, d.Notifications)
	markController := controllers.NewMarkController(d.Notifications)
	formController := controllers.NewFormController(d.Files, d.Notifications)
	uniformController := controllers.NewUniformController(d.Notifications)
	logController := controllers.NewLogController(d.LogArchive)
	healthController := controllers.NewHealthController(d.Health)
	wsController := controllers.NewWebSocketController(d.Hub)

	jwt := middleware.JWTMiddleware()
	self := middleware.RequireSelfOrStaff("enrollment")
	staff := middleware.RequireStaff()
	admin := middleware.RequireAdmin()

	app.Get("/health", healthController.GetHealthStatus)
	app.Get("/ws", jwt, wsController.RequireUpgrade, wsController.WebSocketHandler())
	if d.LineWebhook != nil {
		app.Post("/line/webhook", d.LineWebhook.Handle)
	}

	api := app.Group("/api")

	// Public
	api.Post("/auth/admin/login", loginLimiter(), authController.AdminLogin)
	api.Post("/students/signup", authController.StudentSignup)
	api.Post("/students/login", loginLimiter(), authController.StudentLogin)
	api.Post("/mentors/login", loginLimiter(), authController.MentorLogin)
	api.Get("/events", eventController.GetEvents)
	api.Get("/events/:code", eventController.GetEvent)
	api.Get("/fines/public-check/:enrollment", fineController.PublicCheck)
	if d.Payments != nil {
		api.Post("/payments/webhook", d.Payments.Handle)
		api.Post("/payments/midtrans", d.Payments.HandleMidtrans)
	}

	// Authenticated
	protected := api.Group("/", jwt)

	protected.Post("/mentors/signup", admin, authController.MentorSignup)
	protected.Get("/admin/students", staff, studentController.AdminOverview)

	students := protected.Group("/students")
	students.Get("/", staff, studentController.GetStudents)
	students.Post("/", staff, studentController.CreateStudent)
	students.Post("/bulk", admin, studentController.BulkCreate)
	students.Post("/import", admin, studentController.ImportStudents)
	students.Get("/:enrollment", self, studentController.GetStudent)
	students.Put("/:enrollment", staff, studentController.UpdateStudent)
	students.Delete("/:enrollment", admin, studentController.DeleteStudent)
	students.Get("/:enrollment/pending-fees", self, studentController.GetPendingFees)
	students.Post("/:enrollment/pending-fees", staff, studentController.SetPendingFees)
	students.Get("/:enrollment/class", self, studentController.GetClass)
	students.Put("/:enrollment/class", staff, studentController.UpdateClass)

	classes := protected.Group("/classes")
	classes.Get("/", staff, classController.ListClasses)
	classes.Post("/", admin, classController.CreateClass)
	classes.Get("/line-groups", admin, classController.ListLineGroups)
	classes.Put("/:id/line-group", admin, classController.SetLineGroup)

	att := protected.Group("/attendance")
	att.Post("/mark", staff, attendanceController.Mark)
	att.Get("/student/:enrollment", self, attendanceController.Summary)
	att.Post("/edit_percentage", staff, attendanceController.EditPercentage)
	att.Delete("/override/:enrollment", staff, attendanceController.ClearOverride)
	att.Put("/edit", staff, attendanceController.Edit)
	att.Get("/class/:class", staff, attendanceController.ListByClass)
	att.Get("/export", staff, attendanceController.Export)

	assignments := protected.Group("/assignments")
	assignments.Post("/", staff, assignmentController.CreateAssignment)
	assignments.Get("/", assignmentController.GetAssignments)
	assignments.Put("/:code", staff, assignmentController.UpdateAssignment)
	assignments.Delete("/:code", staff, assignmentController.DeleteAssignment)

	exams := protected.Group("/exams")
	exams.Post("/", staff, examController.CreateExam)
	exams.Get("/", examController.GetExams)
	exams.Delete("/:code", staff, examController.DeleteExam)

	notices := protected.Group("/notices")
	notices.Post("/", staff, noticeController.CreateNotice)
	notices.Get("/", self, noticeController.GetNotices)
	notices.Get("/unread-count", self, noticeController.UnreadCount)
	notices.Post("/:id/read", noticeController.MarkRead)
	notices.Delete("/:id", staff, noticeController.DeleteNotice)

	events := protected.Group("/events")
	events.Post("/", staff, eventController.CreateEvent)
	events.Delete("/:code", staff, eventController.DeleteEvent)

	fineRoutes := protected.Group("/fines")
	fineRoutes.Post("/bulk-add", staff, fineController.BulkAdd)
	fineRoutes.Get("/all", staff, fineController.All)
	fineRoutes.Get("/student/:enrollment", self, fineController.ForStudent)
	fineRoutes.Put("/:id", staff, fineController.Update)
	fineRoutes.Delete("/:id", staff, fineController.Delete)
	fineRoutes.Post("/:id/checkout", fineController.Checkout)

	protected.Post("/save-token", notificationController.SaveToken)
	notify := protected.Group("/notify", staff)
	notify.Post("/:kind", notificationController.Notify)
	feed := protected.Group("/notifications")
	feed.Get("/", self, notificationController.Feed)
	feed.Post("/clear-all", notificationController.ClearAll)
	feed.Delete("/:id", staff, notificationController.DeleteLog)

	docs := protected.Group("/documents")
	docs.Post("/attendance_sheet/:id/mark-updated", staff, documentController.MarkUpdated)
	docs.Post("/:kind", staff, documentController.Upload)
	docs.Get("/:kind", documentController.List)
	docs.Get("/:kind/:id", documentController.Get)
	docs.Delete("/:kind/:id", staff, documentController.Delete)
	protected.Get("/uploads/:id", documentController.UploadStatus)

	mentors := protected.Group("/mentors")
	mentors.Get("/", admin, mentorController.ListMentors)
	mentors.Put("/:mentorId/salary", admin, mentorController.SetSalary)
	mentors.Get("/:mentorId/salary", staff, mentorController.GetSalary)

	marks := protected.Group("/marks")
	marks.Post("/", staff, markController.SaveMarks)
	marks.Get("/:enrollment", self, markController.GetMarks)

	forms := protected.Group("/forms")
	forms.Post("/", admin, formController.CreateForm)
	forms.Get("/", formController.ListForms)
	forms.Get("/submissions/mine", middleware.RequireRole(models.RoleStudent), formController.MySubmissions)
	forms.Put("/submissions/:id/status", admin, formController.SetSubmissionStatus)
	forms.Get("/:id", formController.GetForm)
	forms.Put("/:id/active", admin, formController.SetActive)
	forms.Post("/:id/submit", middleware.RequireRole(models.RoleStudent), formController.Submit)
	forms.Get("/:id/submissions", admin, formController.Submissions)

	uniform := protected.Group("/uniform")
	uniform.Post("/request", middleware.RequireRole(models.RoleStudent), uniformController.Request)
	uniform.Get("/requests", staff, uniformController.List)
	uniform.Put("/requests/:id/status", staff, uniformController.SetStatus)

	logs := protected.Group("/logs", admin)
	logs.Get("/", logController.GetLogs)
	logs.Get("/stats", logController.GetLogStats)
	logs.Get("/export", logController.ExportLogs)
	logs.Get("/archives", logController.ListArchives)
	logs.Get("/archives/:id/download", logController.DownloadArchive)
	logs.Post("/flush-cache", logController.FlushCachedLogs)
	logs.Post("/archive", logController.ArchiveLogs)
	logs.Get("/:id", logController.GetLog)

	protected.Get("/ws/stats", admin, wsController.GetWebSocketStats)
}
