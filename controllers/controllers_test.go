package controllers

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services"
	"campusdesk_go/services/attendance"
	"campusdesk_go/services/fines"
	"campusdesk_go/services/uploads"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, want: fiber.StatusNotFound},
		{name: "wrapped job not found", err: errors.Wrap(uploads.ErrJobNotFound, "lookup"), want: fiber.StatusNotFound},
		{name: "duplicate key", err: gorm.ErrDuplicatedKey, want: fiber.StatusConflict},
		{name: "fine already paid", err: fines.ErrAlreadyPaid, want: fiber.StatusConflict},
		{name: "bad override", err: attendance.ErrInvalidOverride, want: fiber.StatusBadRequest},
		{name: "empty upload", err: uploads.ErrEmptyFile, want: fiber.StatusBadRequest},
		{name: "checkout disabled", err: fines.ErrCheckoutDisabled, want: fiber.StatusServiceUnavailable},
		{name: "archive disabled", err: services.ErrArchiveDisabled, want: fiber.StatusServiceUnavailable},
		{name: "unknown", err: fmt.Errorf("boom"), want: fiber.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusForError(tc.err))
		})
	}
}

func TestParseDeadline(t *testing.T) {
	t.Run("rfc3339", func(t *testing.T) {
		got, err := parseDeadline("2024-05-01T10:30:00Z")
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)))
	})

	t.Run("datetime-local", func(t *testing.T) {
		got, err := parseDeadline("2024-05-01T10:30")
		require.NoError(t, err)
		assert.Equal(t, 10, got.Hour())
		assert.Equal(t, 30, got.Minute())
	})

	t.Run("bare date is end of day", func(t *testing.T) {
		got, err := parseDeadline(" 2024-05-01 ")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Day())
		assert.Equal(t, 23, got.Hour())
		assert.Equal(t, 59, got.Second())
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseDeadline("next friday")
		assert.Error(t, err)
	})
}

func TestParseFormFields(t *testing.T) {
	fields, err := ParseFormFields(`[
		{"label":" Name ","type":"TEXT","required":true},
		{"label":"Shirt size","type":"select","options":["S","M","L"]},
		{"label":"ID proof","type":"file"}
	]`)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "Name", fields[0].Label)
	assert.Equal(t, "text", fields[0].Type)
	assert.True(t, fields[0].Required)
	assert.Equal(t, []string{"S", "M", "L"}, fields[1].Options)

	_, err = ParseFormFields(`[{"label":"Colour","type":"slider"}]`)
	assert.Error(t, err)

	_, err = ParseFormFields(`[{"label":"","type":"text"}]`)
	assert.Error(t, err)

	_, err = ParseFormFields(`not json`)
	assert.Error(t, err)
}

func TestParseStudentSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Enrollment", "Name", "Branch", "Year", "Section", "Email"},
		{"0101cs221001", "Asha", "CSE", "3", "A", "asha@example.com"},
		{"", "No Enrollment", "CSE", "3", "A", ""},
		{"0101CS221001", "Duplicate", "CSE", "3", "A", ""},
		{"0101EC221002", "Ravi", "ece", "2", "b", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	students, skipped, err := ParseStudentSheet(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, students, 2)
	assert.Equal(t, "0101CS221001", students[0].Enrollment)
	assert.Equal(t, "CSE3A", students[0].Class)
	assert.Equal(t, "asha@example.com", students[0].Email)
	assert.Equal(t, "ECE2B", students[1].Class)
}

func TestParseStudentSheetRequiresEnrollmentColumn(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue(f.GetSheetName(0), "A1", "Name"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, _, err = ParseStudentSheet(bytes.NewReader(buf.Bytes()))
	assert.Error(t, err)
}

func TestAttendanceWorkbook(t *testing.T) {
	report := []attendance.Summary{
		{Enrollment: "0101CS221001", Name: "Asha", Present: 9, Total: 10, Percentage: 90, Source: attendance.SourceAuto},
		{Enrollment: "0101CS221002", Name: "Ravi", Present: 3, Total: 4, Percentage: 75, Source: attendance.SourceManual},
	}
	buf, err := AttendanceWorkbook("CSE3A", report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("CSE3A")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Enrollment", "Name", "Present", "Total", "Percentage", "Source"}, rows[0])
	assert.Equal(t, "0101CS221002", rows[2][0])
	assert.Equal(t, attendance.SourceManual, rows[2][5])
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "", SubjectFor(nil))

	student := &middleware.Claims{Role: models.RoleStudent, Enrollment: "0101CS221001"}
	student.Subject = "student:1"
	assert.Equal(t, "0101CS221001", SubjectFor(student))

	mentor := &middleware.Claims{Role: models.RoleMentor, RegisteredClaims: jwt.RegisteredClaims{Subject: "mentor:7"}}
	assert.Equal(t, "mentor:7", SubjectFor(mentor))
}

func TestNotifyRequestEnrollmentsDedupe(t *testing.T) {
	req := NotifyRequest{
		Enrollment:  " 0101cs221001 ",
		Enrollments: []string{"0101CS221001", "", "0101cs221002"},
	}
	assert.Equal(t, []string{"0101CS221001", "0101CS221002"}, req.enrollments())
}

func TestNotifyPresetMessage(t *testing.T) {
	bus := notifyPresets["bus"]
	msg := bus.message(NotifyRequest{})
	assert.Equal(t, "Bus Route Update", msg.Title)
	assert.Equal(t, "/bus-route.html", msg.URL)
	assert.Equal(t, audienceAll, bus.audience)

	msg = notifyPresets["marks"].message(NotifyRequest{Title: "Results out", URL: "/r"})
	assert.Equal(t, "Results out", msg.Title)
	assert.Equal(t, "Your marks have been updated", msg.Body)
	assert.Equal(t, "/r", msg.URL)

	assert.True(t, notifyPresets["assignments"].needsContent)
	_, ok := notifyPresets["enrollment"]
	assert.False(t, ok)
}
