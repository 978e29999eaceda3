package controllers

import (
	"errors"
	"strings"

	"campusdesk_go/database"
	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AuthController struct{}

// LoginRequest represents the admin login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type StudentSignupRequest struct {
	Name       string `json:"name" validate:"required"`
	Enrollment string `json:"enrollment" validate:"required,max=50"`
	Password   string `json:"password" validate:"required,min=6"`
	Branch     string `json:"branch" validate:"required"`
	Section    string `json:"section"`
	Year       string `json:"year"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone"`
}

type StudentLoginRequest struct {
	Enrollment string `json:"enrollment" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type MentorSignupRequest struct {
	MentorID      string `json:"mentor_id" validate:"required,max=50"`
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone"`
	Subject       string `json:"subject"`
	Branch        string `json:"branch"`
	ClassAssigned string `json:"class_assigned"`
	Password      string `json:"password" validate:"required,min=6"`
}

type MentorLoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func issueToken(c *fiber.Ctx, claims middleware.Claims, extra fiber.Map) error {
	token, err := middleware.GenerateToken(claims)
	if err != nil {
		logrus.WithError(err).Error("failed to sign token")
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	body := fiber.Map{"token": token, "role": claims.Role}
	for k, v := range extra {
		body[k] = v
	}
	return utils.SuccessMap(c, fiber.StatusOK, "Login successful", body)
}

// AdminLogin authenticates an admin account.
func (ac *AuthController) AdminLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	var user models.User
	if err := database.DB.Where("username = ? AND status = ?", req.Username, "active").First(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	middleware.LogActivity(c, "LOGIN", "auth", user.Username, fiber.Map{"role": models.RoleAdmin})
	return issueToken(c, middleware.AdminClaims(user), fiber.Map{"username": user.Username})
}

// StudentSignup registers a student and places them in the class derived from branch, year and section.
func (ac *AuthController) StudentSignup(c *fiber.Ctx) error {
	var req StudentSignupRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to process password")
	}
	student := models.Student{
		Enrollment: strings.ToUpper(strings.TrimSpace(req.Enrollment)),
		Name:       utils.SanitizeString(req.Name),
		Email:      req.Email,
		Phone:      req.Phone,
		Branch:     req.Branch,
		Section:    req.Section,
		Year:       req.Year,
		Class:      utils.NormalizeClass(req.Branch + req.Year + req.Section),
		Password:   hash,
	}

	var existing models.Student
	if err := database.DB.Where("enrollment = ?", student.Enrollment).First(&existing).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "Enrollment already exists")
	}
	if err := database.DB.Create(&student).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "Enrollment already exists")
		}
		return respondServiceError(c, err, "Failed to create student")
	}
	return utils.SuccessWithCode(c, fiber.StatusCreated, "Signup successful", student)
}

// StudentLogin accepts bcrypt hashes and, once, a legacy plaintext password, which is then re-hashed.
func (ac *AuthController) StudentLogin(c *fiber.Ctx) error {
	var req StudentLoginRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	var student models.Student
	if err := database.DB.Where("enrollment = ?", strings.ToUpper(strings.TrimSpace(req.Enrollment))).First(&student).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if student.Password == "" {
		return utils.Error(c, fiber.StatusUnauthorized, "Account has no password, please sign up")
	}

	if utils.IsBcryptHash(student.Password) {
		if err := utils.CheckPassword(req.Password, student.Password); err != nil {
			return utils.Error(c, fiber.StatusUnauthorized, "Invalid credentials")
		}
	} else {
		if student.Password != req.Password {
			return utils.Error(c, fiber.StatusUnauthorized, "Invalid credentials")
		}
		if hash, err := utils.HashPassword(req.Password); err == nil {
			if err := database.DB.Model(&student).Update("password", hash).Error; err != nil {
				logrus.WithError(err).WithField("enrollment", student.Enrollment).Warn("failed to upgrade legacy password")
			}
		}
	}

	middleware.LogActivity(c, "LOGIN", "auth", student.Enrollment, fiber.Map{"role": models.RoleStudent})
	return issueToken(c, middleware.StudentClaims(student), fiber.Map{
		"enrollment": student.Enrollment,
		"name":       student.Name,
		"class":      student.Class,
	})
}

// MentorSignup creates a mentor account. Admin only.
func (ac *AuthController) MentorSignup(c *fiber.Ctx) error {
	var req MentorSignupRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to process password")
	}
	mentor := models.Mentor{
		MentorID:      strings.TrimSpace(req.MentorID),
		Name:          utils.SanitizeString(req.Name),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:         req.Phone,
		Subject:       req.Subject,
		Branch:        req.Branch,
		ClassAssigned: utils.NormalizeClass(req.ClassAssigned),
		Password:      hash,
	}
	if err := database.DB.Create(&mentor).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "Mentor already exists")
		}
		return respondServiceError(c, err, "Failed to create mentor")
	}
	return utils.SuccessWithCode(c, fiber.StatusCreated, "Mentor created", mentor)
}

// MentorLogin authenticates a mentor by email or mentor id.
func (ac *AuthController) MentorLogin(c *fiber.Ctx) error {
	var req MentorLoginRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}

	login := strings.TrimSpace(req.Email)
	var mentor models.Mentor
	if err := database.DB.Where("email = ? OR mentor_id = ?", strings.ToLower(login), login).First(&mentor).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err := utils.CheckPassword(req.Password, mentor.Password); err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	middleware.LogActivity(c, "LOGIN", "auth", mentor.MentorID, fiber.Map{"role": models.RoleMentor})
	return issueToken(c, middleware.MentorClaims(mentor), fiber.Map{
		"mentor_id": mentor.MentorID,
		"name":      mentor.Name,
		"class":     mentor.ClassAssigned,
	})
}
