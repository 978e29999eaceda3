package attendance

import (
	"context"
	"testing"

	"campusdesk_go/models"
	"campusdesk_go/services/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type key struct{ enrollment, date, lecture string }

type memStore struct {
	rows      map[key]models.AttendanceRecord
	overrides map[string]models.AttendanceOverride
	students  map[string]models.Student
}

func newMemStore(students ...models.Student) *memStore {
	m := &memStore{
		rows:      map[key]models.AttendanceRecord{},
		overrides: map[string]models.AttendanceOverride{},
		students:  map[string]models.Student{},
	}
	for _, st := range students {
		m.students[st.Enrollment] = st
	}
	return m
}

func (m *memStore) Override(_ context.Context, enrollment string) (*models.AttendanceOverride, error) {
	o, ok := m.overrides[enrollment]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *memStore) Overrides(_ context.Context, enrollments []string) (map[string]models.AttendanceOverride, error) {
	out := map[string]models.AttendanceOverride{}
	for _, e := range enrollments {
		if o, ok := m.overrides[e]; ok {
			out[e] = o
		}
	}
	return out, nil
}

func (m *memStore) Counts(_ context.Context, enrollment string) (int, int, error) {
	total, present := 0, 0
	for k, r := range m.rows {
		if k.enrollment == enrollment {
			total++
			if r.Status == models.AttendancePresent {
				present++
			}
		}
	}
	return total, present, nil
}

func (m *memStore) ClassCounts(_ context.Context, class string) (map[string][2]int, error) {
	out := map[string][2]int{}
	for _, r := range m.rows {
		if r.Class != class {
			continue
		}
		c := out[r.Enrollment]
		c[0]++
		if r.Status == models.AttendancePresent {
			c[1]++
		}
		out[r.Enrollment] = c
	}
	return out, nil
}

func (m *memStore) Students(_ context.Context, enrollments []string) (map[string]models.Student, error) {
	out := map[string]models.Student{}
	for _, e := range enrollments {
		if st, ok := m.students[e]; ok {
			out[e] = st
		}
	}
	return out, nil
}

func (m *memStore) StudentsInClass(_ context.Context, class string) ([]models.Student, error) {
	var out []models.Student
	for _, st := range m.students {
		if st.Class == class {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, records []models.AttendanceRecord) error {
	for _, r := range records {
		m.rows[key{r.Enrollment, r.Date, r.LectureID}] = r
	}
	return nil
}

func (m *memStore) SaveOverride(_ context.Context, o *models.AttendanceOverride) error {
	m.overrides[o.Enrollment] = *o
	return nil
}

func (m *memStore) DeleteOverride(_ context.Context, enrollment string) (bool, error) {
	_, ok := m.overrides[enrollment]
	delete(m.overrides, enrollment)
	return ok, nil
}

func (m *memStore) UpdateStatus(_ context.Context, enrollment, date, status string) (int64, error) {
	var n int64
	for k, r := range m.rows {
		if k.enrollment == enrollment && k.date == date {
			r.Status = status
			m.rows[k] = r
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListByClass(_ context.Context, class, date string) ([]models.AttendanceRecord, error) {
	var out []models.AttendanceRecord
	for _, r := range m.rows {
		if r.Class == class && (date == "" || r.Date == date) {
			out = append(out, r)
		}
	}
	return out, nil
}

type queued struct {
	target notifications.Target
	msg    notifications.Message
}

type fakeNotifier struct{ sent []queued }

func (f *fakeNotifier) Enqueue(target notifications.Target, msg notifications.Message) {
	f.sent = append(f.sent, queued{target, msg})
}

func TestGetSummaryComputesRoundedPercentage(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	for date, status := range map[string]string{"2024-01-01": "P", "2024-01-02": "P", "2024-01-03": "A"} {
		_, err := svc.Mark(ctx, MarkRequest{Records: map[string]string{"E1": status}, Date: date})
		require.NoError(t, err)
	}

	sum, err := svc.GetSummary(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Present)
	assert.Equal(t, 66.67, sum.Percentage)
	assert.Equal(t, SourceAuto, sum.Source)
}

func TestGetSummaryWithNoRowsIsZero(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	sum, err := svc.GetSummary(context.Background(), "E404")

	require.NoError(t, err)
	assert.Equal(t, 0.0, sum.Percentage)
	assert.Equal(t, SourceAuto, sum.Source)
}

func TestOverrideWinsOverComputed(t *testing.T) {
	store := newMemStore()
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier)
	ctx := context.Background()

	_, err := svc.Mark(ctx, MarkRequest{Records: map[string]string{"E1": "P"}, Date: "2024-01-01"})
	require.NoError(t, err)

	_, err = svc.SetOverride(ctx, "E1", 40, 30, "admin")
	require.NoError(t, err)

	sum, err := svc.GetSummary(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 75.0, sum.Percentage)
	assert.Equal(t, SourceManual, sum.Source)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notifications.EnrollmentTarget("E1"), notifier.sent[0].target)

	require.NoError(t, svc.ClearOverride(ctx, "E1"))
	sum, err = svc.GetSummary(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, sum.Percentage)
	assert.ErrorIs(t, svc.ClearOverride(ctx, "E1"), ErrNotFound)
}

func TestSetOverrideRejectsInvalidCounts(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	cases := []struct{ total, present int }{{10, 11}, {-1, 0}, {5, -2}}
	for _, tc := range cases {
		_, err := svc.SetOverride(context.Background(), "E1", tc.total, tc.present, "admin")
		assert.ErrorIs(t, err, ErrInvalidOverride)
	}
}

func TestMarkUpsertsAndSkipsUnknownStatuses(t *testing.T) {
	store := newMemStore(models.Student{Enrollment: "E1", Class: "CSEA", Branch: "CSE", Section: "A", Year: "3"})
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier)
	svc.today = func() string { return "2024-02-10" }
	ctx := context.Background()

	saved, err := svc.Mark(ctx, MarkRequest{
		Records:   map[string]string{"E1": "A", "E2": "p", "E3": "late"},
		LectureID: "L1",
		Subject:   "DBMS",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	saved, err = svc.Mark(ctx, MarkRequest{Records: map[string]string{"E1": "P"}, LectureID: "L1"})
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	assert.Len(t, store.rows, 2)
	row := store.rows[key{"E1", "2024-02-10", "L1"}]
	assert.Equal(t, "P", row.Status)
	assert.Equal(t, "CSEA", row.Class)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].msg.Body, "DBMS")
}

func TestEditUpdatesOrReportsMissing(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()
	_, err := svc.Mark(ctx, MarkRequest{Records: map[string]string{"E1": "A"}, Date: "2024-03-01", LectureID: "L1"})
	require.NoError(t, err)

	n, err := svc.Edit(ctx, "E1", "2024-03-01", "p")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.Edit(ctx, "E1", "2024-03-02", "P")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Edit(ctx, "E1", "2024-03-01", "X")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestClassReportPrefersOverrides(t *testing.T) {
	store := newMemStore(
		models.Student{Enrollment: "E2", Name: "Bea", Class: "CSEA"},
		models.Student{Enrollment: "E1", Name: "Ann", Class: "CSEA"},
	)
	svc := NewService(store, nil)
	ctx := context.Background()
	_, err := svc.Mark(ctx, MarkRequest{Records: map[string]string{"E1": "P", "E2": "A"}, Date: "2024-03-01"})
	require.NoError(t, err)
	_, err = svc.SetOverride(ctx, "E2", 4, 1, "admin")
	require.NoError(t, err)

	report, err := svc.ClassReport(ctx, "cse a")
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, "E1", report[0].Enrollment)
	assert.Equal(t, 100.0, report[0].Percentage)
	assert.Equal(t, SourceManual, report[1].Source)
	assert.Equal(t, 25.0, report[1].Percentage)
}
