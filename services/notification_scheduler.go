package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"campusdesk_go/models"
	"campusdesk_go/services/notifications"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	AssignmentReminderSpec = "0 8 * * *"
	ExamReminderSpec       = "0 7 * * *"
	LogFlushSpec           = "*/10 * * * *"
	LogArchiveSpec         = "0 3 * * 0"
)

// Notifier queues a push notification.
type Notifier interface {
	Enqueue(target notifications.Target, msg notifications.Message)
}

// ReminderSource loads what the reminders are about.
type ReminderSource interface {
	AssignmentsDue(ctx context.Context, from, to time.Time) ([]models.Assignment, error)
	ExamsOn(ctx context.Context, date string) ([]models.Exam, error)
}

// GormReminderSource reads reminders from MySQL.
type GormReminderSource struct {
	DB *gorm.DB
}

func (s GormReminderSource) AssignmentsDue(ctx context.Context, from, to time.Time) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := s.DB.WithContext(ctx).
		Where("active = ? AND deadline > ? AND deadline <= ?", true, from, to).
		Order("deadline ASC").
		Find(&rows).Error
	return rows, err
}

func (s GormReminderSource) ExamsOn(ctx context.Context, date string) ([]models.Exam, error) {
	var rows []models.Exam
	err := s.DB.WithContext(ctx).Where("date = ?", date).Order("time ASC").Find(&rows).Error
	return rows, err
}

// NotificationScheduler runs the daily reminders and the log maintenance jobs on cron.
type NotificationScheduler struct {
	cron          *cron.Cron
	source        ReminderSource
	notifier      Notifier
	archive       *LogArchiveService
	retentionDays int
	now           func() time.Time
}

// NewNotificationScheduler creates the scheduler. archive may be nil.
func NewNotificationScheduler(source ReminderSource, notifier Notifier, archive *LogArchiveService, retentionDays int) *NotificationScheduler {
	if retentionDays < MinArchiveDays {
		retentionDays = MinArchiveDays
	}
	return &NotificationScheduler{
		cron:          cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		source:        source,
		notifier:      notifier,
		archive:       archive,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

type cronJob struct {
	spec string
	name string
	run  func(ctx context.Context) error
}

func (ns *NotificationScheduler) jobs() []cronJob {
	jobs := []cronJob{
		{AssignmentReminderSpec, "assignment reminders", func(ctx context.Context) error {
			_, err := ns.SendAssignmentReminders(ctx)
			return err
		}},
		{ExamReminderSpec, "exam reminders", func(ctx context.Context) error {
			_, err := ns.SendExamReminders(ctx)
			return err
		}},
	}
	if ns.archive == nil {
		return jobs
	}
	return append(jobs,
		cronJob{LogFlushSpec, "activity log flush", func(ctx context.Context) error {
			_, err := ns.archive.FlushCachedLogsToDatabase(ctx)
			return err
		}},
		cronJob{LogArchiveSpec, "log archive", func(ctx context.Context) error {
			return ns.archive.ArchiveOldLogs(ctx, ns.retentionDays)
		}},
	)
}

// Start registers the jobs and starts the cron loop.
func (ns *NotificationScheduler) Start() error {
	jobs := ns.jobs()
	for _, j := range jobs {
		j := j
		if _, err := ns.cron.AddFunc(j.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := j.run(ctx); err != nil {
				log.Printf("[scheduler] %s failed: %v", j.name, err)
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}
	ns.cron.Start()
	log.Printf("[scheduler] started with %d jobs", len(jobs))
	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (ns *NotificationScheduler) Stop() {
	<-ns.cron.Stop().Done()
}

// SendAssignmentReminders notifies each class once per active assignment due in the next 24 hours.
func (ns *NotificationScheduler) SendAssignmentReminders(ctx context.Context) (int, error) {
	now := ns.now()
	due, err := ns.source.AssignmentsDue(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return 0, err
	}
	for _, a := range due {
		ns.notifier.Enqueue(notifications.ClassTarget(a.Class), AssignmentReminder(a))
	}
	return len(due), nil
}

// SendExamReminders notifies each class with its exams of the day in one message.
func (ns *NotificationScheduler) SendExamReminders(ctx context.Context) (int, error) {
	exams, err := ns.source.ExamsOn(ctx, ns.now().Format("2006-01-02"))
	if err != nil {
		return 0, err
	}
	byClass := map[string][]models.Exam{}
	for _, e := range exams {
		byClass[e.Class] = append(byClass[e.Class], e)
	}
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		ns.notifier.Enqueue(notifications.ClassTarget(c), ExamReminder(byClass[c]))
	}
	return len(classes), nil
}

func AssignmentReminder(a models.Assignment) notifications.Message {
	return notifications.Message{
		Title: "⏰ Assignment Due Soon",
		Body:  fmt.Sprintf("%s (%s) is due %s.", a.Title, a.Subject, a.Deadline.Format("Mon 02 Jan 15:04")),
		URL:   "/assignments.html",
		Data:  map[string]string{"code": a.Code},
	}
}

func ExamReminder(exams []models.Exam) notifications.Message {
	parts := make([]string, 0, len(exams))
	for _, e := range exams {
		p := fmt.Sprintf("%s (%s) in room %s", e.ExamName, e.Subject, e.Room)
		if e.Time != "" {
			p += " at " + e.Time
		}
		parts = append(parts, p)
	}
	return notifications.Message{
		Title: "📝 Exam Today",
		Body:  strings.Join(parts, "; "),
		URL:   "/exams.html",
	}
}
