package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"campusdesk_go/models"
	"campusdesk_go/services/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queued struct {
	target notifications.Target
	msg    notifications.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []queued
}

func (r *recordingNotifier) Enqueue(target notifications.Target, msg notifications.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, queued{target, msg})
}

type fakeReminders struct {
	assignments []models.Assignment
	exams       []models.Exam
	from, to    time.Time
	date        string
}

func (f *fakeReminders) AssignmentsDue(_ context.Context, from, to time.Time) ([]models.Assignment, error) {
	f.from, f.to = from, to
	var out []models.Assignment
	for _, a := range f.assignments {
		if a.Active && a.Deadline.After(from) && !a.Deadline.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeReminders) ExamsOn(_ context.Context, date string) ([]models.Exam, error) {
	f.date = date
	var out []models.Exam
	for _, e := range f.exams {
		if e.Date == date {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestAssignmentReminders(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	src := &fakeReminders{assignments: []models.Assignment{
		{Code: "A-000001", Class: "CSE3A", Title: "Graphs", Subject: "DSA", Deadline: now.Add(5 * time.Hour), Active: true},
		{Code: "A-000002", Class: "CSE3B", Title: "Trees", Subject: "DSA", Deadline: now.Add(30 * time.Hour), Active: true},
		{Code: "A-000003", Class: "CSE3A", Title: "Old", Subject: "DSA", Deadline: now.Add(2 * time.Hour), Active: false},
	}}
	notifier := &recordingNotifier{}
	ns := NewNotificationScheduler(src, notifier, nil, 30)
	ns.now = func() time.Time { return now }

	n, err := ns.SendAssignmentReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, now.Add(24*time.Hour), src.to)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notifications.ClassTarget("CSE3A"), notifier.sent[0].target)
	assert.Contains(t, notifier.sent[0].msg.Body, "Graphs")
	assert.Equal(t, "A-000001", notifier.sent[0].msg.Data["code"])
}

func TestExamRemindersGroupByClass(t *testing.T) {
	now := time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)
	src := &fakeReminders{exams: []models.Exam{
		{ExamName: "MST-1", Subject: "DBMS", Date: "2024-03-10", Time: "10:00", Room: "101", Class: "CSE3B"},
		{ExamName: "MST-1", Subject: "OS", Date: "2024-03-10", Room: "102", Class: "CSE3A"},
		{ExamName: "MST-1", Subject: "CN", Date: "2024-03-10", Time: "14:00", Room: "102", Class: "CSE3A"},
		{ExamName: "MST-2", Subject: "OS", Date: "2024-03-11", Room: "102", Class: "CSE3A"},
	}}
	notifier := &recordingNotifier{}
	ns := NewNotificationScheduler(src, notifier, nil, 30)
	ns.now = func() time.Time { return now }

	n, err := ns.SendExamReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "2024-03-10", src.date)
	require.Len(t, notifier.sent, 2)
	assert.Equal(t, "CSE3A", notifier.sent[0].target.Value)
	assert.Equal(t, "MST-1 (OS) in room 102; MST-1 (CN) in room 102 at 14:00", notifier.sent[0].msg.Body)
	assert.Equal(t, "CSE3B", notifier.sent[1].target.Value)
}

func TestSchedulerJobs(t *testing.T) {
	ns := NewNotificationScheduler(&fakeReminders{}, &recordingNotifier{}, nil, 1)
	assert.Equal(t, MinArchiveDays, ns.retentionDays)
	assert.Len(t, ns.jobs(), 2)

	ns = NewNotificationScheduler(&fakeReminders{}, &recordingNotifier{}, &LogArchiveService{}, 30)
	jobs := ns.jobs()
	require.Len(t, jobs, 4)
	assert.Equal(t, LogArchiveSpec, jobs[3].spec)

	require.NoError(t, ns.Start())
	ns.Stop()
}
