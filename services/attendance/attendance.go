// Package attendance marks lecture attendance and computes per-student summaries.
// A manual override, when present, replaces the value derived from attendance rows.
package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"campusdesk_go/models"
	"campusdesk_go/services/notifications"
	"campusdesk_go/utils"

	"github.com/pkg/errors"
)

const (
	SourceManual = "manual"
	SourceAuto   = "auto"
)

var (
	ErrInvalidOverride = errors.New("present must be between 0 and total")
	ErrInvalidStatus   = errors.New("status must be P or A")
	ErrNotFound        = errors.New("attendance not found")
)

// Summary is the attendance of one student.
type Summary struct {
	Enrollment string  `json:"enrollment,omitempty"`
	Name       string  `json:"name,omitempty"`
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Percentage float64 `json:"percentage"`
	Source     string  `json:"source"`
}

// Store is the persistence used by Service.
type Store interface {
	// Override returns nil, nil when no override exists.
	Override(ctx context.Context, enrollment string) (*models.AttendanceOverride, error)
	Overrides(ctx context.Context, enrollments []string) (map[string]models.AttendanceOverride, error)
	Counts(ctx context.Context, enrollment string) (total, present int, err error)
	ClassCounts(ctx context.Context, class string) (map[string][2]int, error)
	Students(ctx context.Context, enrollments []string) (map[string]models.Student, error)
	StudentsInClass(ctx context.Context, class string) ([]models.Student, error)
	Upsert(ctx context.Context, records []models.AttendanceRecord) error
	SaveOverride(ctx context.Context, o *models.AttendanceOverride) error
	DeleteOverride(ctx context.Context, enrollment string) (bool, error)
	UpdateStatus(ctx context.Context, enrollment, date, status string) (int64, error)
	ListByClass(ctx context.Context, class, date string) ([]models.AttendanceRecord, error)
}

// Notifier queues a push notification.
type Notifier interface {
	Enqueue(target notifications.Target, msg notifications.Message)
}

type Service struct {
	store    Store
	notifier Notifier
	today    func() string
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier, today: utils.Today}
}

// GetSummary returns the override when one exists, otherwise the computed attendance.
func (s *Service) GetSummary(ctx context.Context, enrollment string) (Summary, error) {
	o, err := s.store.Override(ctx, enrollment)
	if err != nil {
		return Summary{}, errors.Wrap(err, "load override")
	}
	if o != nil {
		return Summary{
			Enrollment: enrollment,
			Total:      o.Total,
			Present:    o.Present,
			Percentage: o.Percentage,
			Source:     SourceManual,
		}, nil
	}

	total, present, err := s.store.Counts(ctx, enrollment)
	if err != nil {
		return Summary{}, errors.Wrap(err, "count attendance")
	}
	return Summary{
		Enrollment: enrollment,
		Total:      total,
		Present:    present,
		Percentage: utils.Percentage(present, total),
		Source:     SourceAuto,
	}, nil
}

// MarkRequest is one lecture worth of marks keyed by enrollment.
type MarkRequest struct {
	Records   map[string]string
	Date      string
	LectureID string
	Subject   string
	MarkedBy  string
}

// Mark upserts one row per (enrollment, date, lecture) and returns how many were saved.
// Statuses other than P and A are skipped. Absent students are notified.
func (s *Service) Mark(ctx context.Context, req MarkRequest) (int, error) {
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = s.today()
	}

	enrollments := make([]string, 0, len(req.Records))
	for enrollment := range req.Records {
		enrollments = append(enrollments, enrollment)
	}
	sort.Strings(enrollments)

	students, err := s.store.Students(ctx, enrollments)
	if err != nil {
		return 0, errors.Wrap(err, "load students")
	}

	var rows []models.AttendanceRecord
	var absent []string
	for _, enrollment := range enrollments {
		status := strings.ToUpper(strings.TrimSpace(req.Records[enrollment]))
		if status != models.AttendancePresent && status != models.AttendanceAbsent {
			continue
		}
		row := models.AttendanceRecord{
			Enrollment: enrollment,
			Date:       date,
			LectureID:  req.LectureID,
			Status:     status,
			Subject:    req.Subject,
			MarkedBy:   req.MarkedBy,
		}
		if st, ok := students[enrollment]; ok {
			row.Section = st.Section
			row.Branch = st.Branch
			row.Year = st.Year
			row.Class = st.Class
		}
		rows = append(rows, row)
		if status == models.AttendanceAbsent {
			absent = append(absent, enrollment)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := s.store.Upsert(ctx, rows); err != nil {
		return 0, errors.Wrap(err, "save attendance")
	}

	for _, enrollment := range absent {
		body := fmt.Sprintf("You were marked absent on %s.", date)
		if req.Subject != "" {
			body = fmt.Sprintf("You were marked absent in %s on %s.", req.Subject, date)
		}
		s.notify(notifications.EnrollmentTarget(enrollment), notifications.Message{
			Title: "📋 Attendance Update",
			Body:  body,
			URL:   "/attendance.html",
		})
	}
	return len(rows), nil
}

// SetOverride stores a manual attendance value and notifies the student.
func (s *Service) SetOverride(ctx context.Context, enrollment string, total, present int, by string) (Summary, error) {
	if total < 0 || present < 0 || present > total {
		return Summary{}, ErrInvalidOverride
	}
	o := &models.AttendanceOverride{
		Enrollment: enrollment,
		Total:      total,
		Present:    present,
		Percentage: utils.Percentage(present, total),
		UpdatedBy:  by,
	}
	if err := s.store.SaveOverride(ctx, o); err != nil {
		return Summary{}, errors.Wrap(err, "save override")
	}

	s.notify(notifications.EnrollmentTarget(enrollment), notifications.Message{
		Title: "📊 Attendance Updated",
		Body:  fmt.Sprintf("Your attendance is now %.2f%% (%d/%d).", o.Percentage, present, total),
		URL:   "/attendance.html",
	})

	return Summary{
		Enrollment: enrollment,
		Total:      total,
		Present:    present,
		Percentage: o.Percentage,
		Source:     SourceManual,
	}, nil
}

// ClearOverride removes a manual value so the computed attendance applies again.
func (s *Service) ClearOverride(ctx context.Context, enrollment string) error {
	ok, err := s.store.DeleteOverride(ctx, enrollment)
	if err != nil {
		return errors.Wrap(err, "delete override")
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Edit changes the status of every lecture of the student on date.
func (s *Service) Edit(ctx context.Context, enrollment, date, status string) (int64, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != models.AttendancePresent && status != models.AttendanceAbsent {
		return 0, ErrInvalidStatus
	}
	n, err := s.store.UpdateStatus(ctx, enrollment, date, status)
	if err != nil {
		return 0, errors.Wrap(err, "update attendance")
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// ListByClass returns the marks of a class, optionally for one date.
func (s *Service) ListByClass(ctx context.Context, class, date string) ([]models.AttendanceRecord, error) {
	return s.store.ListByClass(ctx, utils.NormalizeClass(class), date)
}

// ClassReport returns one summary per student of the class, sorted by enrollment.
func (s *Service) ClassReport(ctx context.Context, class string) ([]Summary, error) {
	class = utils.NormalizeClass(class)
	students, err := s.store.StudentsInClass(ctx, class)
	if err != nil {
		return nil, errors.Wrap(err, "load class")
	}
	counts, err := s.store.ClassCounts(ctx, class)
	if err != nil {
		return nil, errors.Wrap(err, "count class attendance")
	}
	enrollments := make([]string, 0, len(students))
	for _, st := range students {
		enrollments = append(enrollments, st.Enrollment)
	}
	overrides, err := s.store.Overrides(ctx, enrollments)
	if err != nil {
		return nil, errors.Wrap(err, "load overrides")
	}

	report := make([]Summary, 0, len(students))
	for _, st := range students {
		sum := Summary{Enrollment: st.Enrollment, Name: st.Name, Source: SourceAuto}
		if o, ok := overrides[st.Enrollment]; ok {
			sum.Total, sum.Present, sum.Percentage, sum.Source = o.Total, o.Present, o.Percentage, SourceManual
		} else {
			c := counts[st.Enrollment]
			sum.Total, sum.Present = c[0], c[1]
			sum.Percentage = utils.Percentage(c[1], c[0])
		}
		report = append(report, sum)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].Enrollment < report[j].Enrollment })
	return report, nil
}

func (s *Service) notify(target notifications.Target, msg notifications.Message) {
	if s.notifier != nil {
		s.notifier.Enqueue(target, msg)
	}
}
