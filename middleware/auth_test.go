package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campusdesk_go/config"
	"campusdesk_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestConfig(t *testing.T) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig = &config.Config{JWTSecret: "test-secret-at-least-16", JWTExpiresIn: time.Hour}
	t.Cleanup(func() { config.AppConfig = prev })
}

func bearer(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := GenerateToken(claims)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestGenerateAndParseToken(t *testing.T) {
	setTestConfig(t)

	token, err := GenerateToken(StudentClaims(models.Student{Enrollment: "0101CS221001", Class: "CSE3A"}))
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "0101CS221001", claims.Subject)
	assert.Equal(t, "CSE3A", claims.Class)

	config.AppConfig.JWTSecret = "a-different-secret-value"
	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestGuards(t *testing.T) {
	setTestConfig(t)

	app := fiber.New()
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	api := app.Group("/api", JWTMiddleware())
	api.Get("/admin-only", RequireAdmin(), ok)
	api.Get("/staff", RequireStaff(), ok)
	api.Get("/students/:enrollment", RequireSelfOrStaff("enrollment"), ok)
	api.Get("/feed", RequireSelfOrStaff("enrollment"), ok)

	student := bearer(t, StudentClaims(models.Student{Enrollment: "0101CS221001"}))
	mentor := bearer(t, MentorClaims(models.Mentor{MentorID: "M-1"}))
	admin := bearer(t, AdminClaims(models.User{Username: "admin"}))

	cases := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"no header", "/api/staff", "", fiber.StatusUnauthorized},
		{"malformed header", "/api/staff", "Token abc", fiber.StatusUnauthorized},
		{"garbage token", "/api/staff", "Bearer abc", fiber.StatusUnauthorized},
		{"student on staff route", "/api/staff", student, fiber.StatusForbidden},
		{"mentor on staff route", "/api/staff", mentor, fiber.StatusOK},
		{"mentor on admin route", "/api/admin-only", mentor, fiber.StatusForbidden},
		{"admin on admin route", "/api/admin-only", admin, fiber.StatusOK},
		{"student reads self", "/api/students/0101CS221001", student, fiber.StatusOK},
		{"student reads other", "/api/students/0101CS221002", student, fiber.StatusForbidden},
		{"mentor reads any student", "/api/students/0101CS221002", mentor, fiber.StatusOK},
		{"student query self", "/api/feed?enrollment=0101cs221001", student, fiber.StatusOK},
		{"student query other", "/api/feed?enrollment=0101CS221009", student, fiber.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestTokenFromQuery(t *testing.T) {
	setTestConfig(t)

	app := fiber.New()
	app.Get("/ws", JWTMiddleware(), func(c *fiber.Ctx) error {
		claims, err := GetCurrentClaims(c)
		if err != nil {
			return err
		}
		return c.SendString(claims.Enrollment)
	})

	token, err := GenerateToken(StudentClaims(models.Student{Enrollment: "0101CS221001"}))
	require.NoError(t, err)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestActivityHelpers(t *testing.T) {
	assert.Equal(t, "CREATE", ActionForMethod(fiber.MethodPost))
	assert.Equal(t, "UPDATE", ActionForMethod(fiber.MethodPatch))
	assert.Equal(t, "DELETE", ActionForMethod(fiber.MethodDelete))
	assert.Equal(t, "", ActionForMethod(fiber.MethodGet))

	assert.Equal(t, "fines", ResourceFromPath("/api/fines/12"))
	assert.Equal(t, "health", ResourceFromPath("/health"))
}
