package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"campusdesk_go/config"
	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services/attendance"
	"campusdesk_go/services/fines"
	"campusdesk_go/services/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attendanceStore keeps marks and overrides in memory.
type attendanceStore struct {
	rows      map[string]models.AttendanceRecord
	overrides map[string]models.AttendanceOverride
}

func newAttendanceStore() *attendanceStore {
	return &attendanceStore{
		rows:      map[string]models.AttendanceRecord{},
		overrides: map[string]models.AttendanceOverride{},
	}
}

func (m *attendanceStore) Override(_ context.Context, enrollment string) (*models.AttendanceOverride, error) {
	o, ok := m.overrides[enrollment]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *attendanceStore) Overrides(_ context.Context, _ []string) (map[string]models.AttendanceOverride, error) {
	return m.overrides, nil
}

func (m *attendanceStore) Counts(_ context.Context, enrollment string) (int, int, error) {
	total, present := 0, 0
	for _, r := range m.rows {
		if r.Enrollment != enrollment {
			continue
		}
		total++
		if r.Status == models.AttendancePresent {
			present++
		}
	}
	return total, present, nil
}

func (m *attendanceStore) ClassCounts(context.Context, string) (map[string][2]int, error) {
	return map[string][2]int{}, nil
}

func (m *attendanceStore) Students(context.Context, []string) (map[string]models.Student, error) {
	return map[string]models.Student{}, nil
}

func (m *attendanceStore) StudentsInClass(context.Context, string) ([]models.Student, error) {
	return nil, nil
}

func (m *attendanceStore) Upsert(_ context.Context, records []models.AttendanceRecord) error {
	for _, r := range records {
		m.rows[r.Enrollment+"|"+r.Date+"|"+r.LectureID] = r
	}
	return nil
}

func (m *attendanceStore) SaveOverride(_ context.Context, o *models.AttendanceOverride) error {
	m.overrides[o.Enrollment] = *o
	return nil
}

func (m *attendanceStore) DeleteOverride(_ context.Context, enrollment string) (bool, error) {
	_, ok := m.overrides[enrollment]
	delete(m.overrides, enrollment)
	return ok, nil
}

func (m *attendanceStore) UpdateStatus(context.Context, string, string, string) (int64, error) {
	return 0, nil
}

func (m *attendanceStore) ListByClass(context.Context, string, string) ([]models.AttendanceRecord, error) {
	return nil, nil
}

// fineStore keeps fines in memory.
type fineStore struct {
	fines  map[uint]*models.Fine
	nextID uint
}

func newFineStore() *fineStore { return &fineStore{fines: map[uint]*models.Fine{}} }

func (m *fineStore) Transaction(_ context.Context, fn func(fines.Store) error) error { return fn(m) }

func (m *fineStore) CreateMany(_ context.Context, rows []models.Fine) error {
	for i := range rows {
		m.nextID++
		rows[i].ID = m.nextID
		f := rows[i]
		m.fines[f.ID] = &f
	}
	return nil
}

func (m *fineStore) Get(_ context.Context, id uint) (*models.Fine, error) {
	f, ok := m.fines[id]
	if !ok {
		return nil, fines.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *fineStore) Save(_ context.Context, f *models.Fine) error {
	cp := *f
	m.fines[f.ID] = &cp
	return nil
}

func (m *fineStore) Delete(_ context.Context, id uint) (bool, error) {
	_, ok := m.fines[id]
	delete(m.fines, id)
	return ok, nil
}

func (m *fineStore) ForEnrollment(context.Context, string) ([]models.Fine, error) { return nil, nil }
func (m *fineStore) All(context.Context) ([]models.Fine, error)                   { return nil, nil }
func (m *fineStore) TransactionExists(context.Context, string) (bool, error)      { return false, nil }
func (m *fineStore) RecordTransaction(context.Context, *models.PaymentTransaction) error {
	return nil
}
func (m *fineStore) PaidTotal(context.Context, uint) (float64, error) { return 0, nil }

// tokenStore keeps one push token per enrollment.
type tokenStore map[string]models.PushToken

func (m tokenStore) ForEnrollment(_ context.Context, enrollment string) (*models.PushToken, error) {
	t, ok := m[enrollment]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m tokenStore) ForClass(_ context.Context, class string) ([]models.PushToken, error) {
	var out []models.PushToken
	for _, t := range m {
		if t.StudentClass == class {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m tokenStore) All(context.Context) ([]models.PushToken, error) {
	var out []models.PushToken
	for _, t := range m {
		out = append(out, t)
	}
	return out, nil
}

func (m tokenStore) Save(_ context.Context, t *models.PushToken) error {
	m[t.Enrollment] = *t
	return nil
}

func (m tokenStore) Delete(_ context.Context, enrollment string) error {
	delete(m, enrollment)
	return nil
}

// logStore records appended logs and the last feed query.
type logStore struct {
	mu        sync.Mutex
	entries   []models.NotificationLog
	lastQuery notifications.FeedQuery
}

func (m *logStore) Append(_ context.Context, e *models.NotificationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *logStore) Feed(_ context.Context, q notifications.FeedQuery) ([]models.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	return m.entries, nil
}

func (m *logStore) Delete(context.Context, string) (bool, error)   { return false, nil }
func (m *logStore) Clear(context.Context, string, time.Time) error { return nil }
func (m *logStore) Before(context.Context, time.Time) ([]models.NotificationLog, error) {
	return nil, nil
}
func (m *logStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

// countingProvider delivers to every token, or fails the whole batch when err is set.
type countingProvider struct{ err error }

func (p countingProvider) Send(_ context.Context, tokens []models.PushToken, _ notifications.Message) (notifications.Result, error) {
	if p.err != nil {
		return notifications.Result{}, p.err
	}
	return notifications.Result{SuccessCount: len(tokens)}, nil
}

type testServer struct {
	app   *fiber.App
	att   *attendanceStore
	fines *fineStore
	logs  *logStore
}

func newTestServer(t *testing.T, tokens tokenStore, provider notifications.Provider) *testServer {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig = &config.Config{JWTSecret: "controller-test-secret", JWTExpiresIn: time.Hour}
	t.Cleanup(func() { config.AppConfig = prev })

	ts := &testServer{att: newAttendanceStore(), fines: newFineStore(), logs: &logStore{}}
	if tokens == nil {
		tokens = tokenStore{}
	}
	notifier := notifications.NewService(tokens, provider, ts.logs)
	ac := NewAttendanceController(attendance.NewService(ts.att, nil))
	fc := NewFineController(fines.NewService(ts.fines, nil))
	nc := NewNotificationController(notifier)

	staff := middleware.RequireStaff()
	self := middleware.RequireSelfOrStaff("enrollment")

	app := fiber.New()
	api := app.Group("/api", middleware.JWTMiddleware())
	api.Post("/attendance/mark", staff, ac.Mark)
	api.Get("/attendance/student/:enrollment", self, ac.Summary)
	api.Post("/attendance/edit_percentage", staff, ac.EditPercentage)
	api.Post("/fines/bulk-add", staff, fc.BulkAdd)
	api.Post("/notify/:kind", staff, nc.Notify)
	api.Get("/notifications", self, nc.Feed)
	ts.app = app
	return ts
}

func token(t *testing.T, claims middleware.Claims) string {
	t.Helper()
	raw, err := middleware.GenerateToken(claims)
	require.NoError(t, err)
	return "Bearer " + raw
}

func mentorToken(t *testing.T) string {
	return token(t, middleware.MentorClaims(models.Mentor{MentorID: "M-1"}))
}

func studentToken(t *testing.T, enrollment, class string) string {
	return token(t, middleware.StudentClaims(models.Student{Enrollment: enrollment, Class: class}))
}

func (ts *testServer) do(t *testing.T, method, path, auth string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := ts.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestMarkAttendanceReportsSaved(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})

	status, body := ts.do(t, http.MethodPost, "/api/attendance/mark", mentorToken(t), fiber.Map{
		"records":   fiber.Map{"0101cs221001": "P", "0101CS221002": "A", "0101CS221003": "L"},
		"lectureId": "L1",
		"date":      "2024-05-01",
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 2.0, body["saved"])
	assert.Contains(t, ts.att.rows, "0101CS221001|2024-05-01|L1")
}

func TestMarkAttendanceRejectsBadDate(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})

	status, body := ts.do(t, http.MethodPost, "/api/attendance/mark", mentorToken(t), fiber.Map{
		"records": fiber.Map{"0101CS221001": "P"},
		"date":    "01/05/2024",
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
}

func TestAttendanceSummaryShape(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})
	mentor := mentorToken(t)
	for i, s := range []string{"P", "P", "A"} {
		status, _ := ts.do(t, http.MethodPost, "/api/attendance/mark", mentor, fiber.Map{
			"records":   fiber.Map{"0101CS221001": s},
			"lectureId": []string{"L1", "L2", "L3"}[i],
			"date":      "2024-05-01",
		})
		require.Equal(t, http.StatusOK, status)
	}

	status, body := ts.do(t, http.MethodGet, "/api/attendance/student/0101CS221001", studentToken(t, "0101CS221001", "CSE3A"), nil)

	require.Equal(t, http.StatusOK, status)
	summary, ok := body["attendance"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3.0, summary["total"])
	assert.Equal(t, 2.0, summary["present"])
	assert.Equal(t, 66.67, summary["percentage"])
	assert.Equal(t, attendance.SourceAuto, summary["source"])
}

func TestAttendanceSummaryOfAnotherStudentIsForbidden(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})

	status, body := ts.do(t, http.MethodGet, "/api/attendance/student/0101CS221002", studentToken(t, "0101CS221001", "CSE3A"), nil)

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, false, body["success"])
}

func TestEditPercentage(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})
	mentor := mentorToken(t)

	status, body := ts.do(t, http.MethodPost, "/api/attendance/edit_percentage", mentor, fiber.Map{
		"enrollment": "0101CS221001", "total": 10, "present": 12,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, ts.att.overrides)

	status, body = ts.do(t, http.MethodPost, "/api/attendance/edit_percentage", mentor, fiber.Map{
		"enrollment": "0101cs221001", "total": 8, "present": 7,
	})
	require.Equal(t, http.StatusOK, status)
	summary := body["attendance"].(map[string]interface{})
	assert.Equal(t, 87.5, summary["percentage"])
	assert.Equal(t, attendance.SourceManual, summary["source"])
	assert.Contains(t, ts.att.overrides, "0101CS221001")
}

func TestEditPercentageRequiresStaff(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})

	status, _ := ts.do(t, http.MethodPost, "/api/attendance/edit_percentage", studentToken(t, "0101CS221001", "CSE3A"), fiber.Map{
		"enrollment": "0101CS221001", "total": 1, "present": 1,
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestBulkAddFines(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})
	mentor := mentorToken(t)

	t.Run("empty list", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/api/fines/bulk-add", mentor, fiber.Map{"fines": []fiber.Map{}})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, false, body["success"])
	})

	t.Run("invalid entry", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/api/fines/bulk-add", mentor, fiber.Map{
			"fines": []fiber.Map{{"enrollment": "0101CS221001", "fine": 0, "reason": ""}},
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.NotNil(t, body["errors"])
		assert.Empty(t, ts.fines.fines)
	})

	t.Run("valid", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/api/fines/bulk-add", mentor, fiber.Map{
			"fines": []fiber.Map{
				{"enrollment": "0101cs221001", "fine": 200, "reason": "Late library return", "class": "cse 3a"},
				{"enrollment": "0101CS221002", "fine": 50, "reason": "Lost ID card"},
			},
		})
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, 2.0, body["count"])
		require.Len(t, ts.fines.fines, 2)
		assert.Equal(t, "0101CS221001", ts.fines.fines[1].Enrollment)
		assert.Equal(t, models.FineStatusPending, ts.fines.fines[1].Status)
	})
}

func TestNotifyTargets(t *testing.T) {
	tokens := tokenStore{
		"0101CS221001": {Enrollment: "0101CS221001", Token: "t1", Kind: models.TokenKindFCM, StudentClass: "CSE3A"},
		"0101CS221002": {Enrollment: "0101CS221002", Token: "t2", Kind: models.TokenKindFCM, StudentClass: "CSE3A"},
		"0101EC221003": {Enrollment: "0101EC221003", Token: "t3", Kind: models.TokenKindFCM, StudentClass: "ECE2B"},
	}
	ts := newTestServer(t, tokens, countingProvider{})
	mentor := mentorToken(t)
	msg := fiber.Map{"title": "Holiday", "body": "College is closed tomorrow"}

	tests := []struct {
		name        string
		path        string
		extra       fiber.Map
		wantSuccess float64
	}{
		{name: "enrollment list", path: "/api/notify/enrollment", extra: fiber.Map{"enrollments": []string{"0101cs221001", "0101CS229999"}}, wantSuccess: 1},
		{name: "class", path: "/api/notify/class", extra: fiber.Map{"class": "cse 3a"}, wantSuccess: 2},
		{name: "global", path: "/api/notify/global", wantSuccess: 3},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := fiber.Map{}
			for k, v := range msg {
				req[k] = v
			}
			for k, v := range tc.extra {
				req[k] = v
			}
			status, body := ts.do(t, http.MethodPost, tc.path, mentor, req)
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, tc.wantSuccess, body["success_count"])
			assert.Equal(t, 0.0, body["failure_count"])
		})
	}
}

func TestNotifyProviderFailureCountsEveryToken(t *testing.T) {
	tokens := tokenStore{
		"0101CS221001": {Enrollment: "0101CS221001", Token: "t1", StudentClass: "CSE3A"},
		"0101CS221002": {Enrollment: "0101CS221002", Token: "t2", StudentClass: "CSE3A"},
	}
	ts := newTestServer(t, tokens, countingProvider{err: errors.New("fcm unavailable")})

	status, body := ts.do(t, http.MethodPost, "/api/notify/global", mentorToken(t), fiber.Map{"title": "t", "body": "b"})

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, body["success_count"])
	assert.Equal(t, 2.0, body["failure_count"])
}

func TestNotifyValidation(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})
	mentor := mentorToken(t)

	status, _ := ts.do(t, http.MethodPost, "/api/notify/class", mentor, fiber.Map{"title": "t", "body": "b"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodPost, "/api/notify/global", mentor, fiber.Map{"title": "t"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodPost, "/api/notify/unknown", mentor, fiber.Map{"title": "t", "body": "b"})
	assert.Equal(t, http.StatusNotFound, status)

	status, body := ts.do(t, http.MethodPost, "/api/notify/bus", mentor, fiber.Map{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, body["success_count"])
	require.Len(t, ts.logs.entries, 1)
	assert.Equal(t, "Bus Route Update", ts.logs.entries[0].Title)
}

func TestStudentFeedUsesOwnClass(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})

	status, body := ts.do(t, http.MethodGet, "/api/notifications?class=ECE2B", studentToken(t, "0101CS221001", "CSE3A"), nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "0101CS221001", ts.logs.lastQuery.Enrollment)
	assert.Equal(t, "CSE3A", ts.logs.lastQuery.Class)
}

func TestStaffFeedUsesQuery(t *testing.T) {
	ts := newTestServer(t, nil, countingProvider{})

	status, _ := ts.do(t, http.MethodGet, "/api/notifications?enrollment=0101ec221003&class=ece-2b", mentorToken(t), nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0101EC221003", ts.logs.lastQuery.Enrollment)
	assert.Equal(t, "ECE2B", ts.logs.lastQuery.Class)
}
