package middleware

import (
	"strings"
	"time"

	"campusdesk_go/config"
	"campusdesk_go/models"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

// Claims identify the caller. Subject is the username, enrollment or mentor id depending on Role.
type Claims struct {
	Role       string `json:"role"`
	Enrollment string `json:"enrollment,omitempty"`
	MentorID   string `json:"mentor_id,omitempty"`
	Class      string `json:"class,omitempty"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the caller is an admin or a mentor.
func (c *Claims) IsStaff() bool {
	return c.Role == models.RoleAdmin || c.Role == models.RoleMentor
}

// GenerateToken signs claims with HS256 and the configured expiry.
func GenerateToken(claims Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.NotBefore = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(config.AppConfig.JWTExpiresIn))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// StudentClaims builds the claims of a student login.
func StudentClaims(s models.Student) Claims {
	return Claims{
		Role:             models.RoleStudent,
		Enrollment:       s.Enrollment,
		Class:            s.Class,
		RegisteredClaims: jwt.RegisteredClaims{Subject: s.Enrollment},
	}
}

// MentorClaims builds the claims of a mentor login.
func MentorClaims(m models.Mentor) Claims {
	return Claims{
		Role:             models.RoleMentor,
		MentorID:         m.MentorID,
		Class:            m.ClassAssigned,
		RegisteredClaims: jwt.RegisteredClaims{Subject: m.MentorID},
	}
}

// AdminClaims builds the claims of an admin login.
func AdminClaims(u models.User) Claims {
	return Claims{
		Role:             models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: u.Username},
	}
}

// ParseToken validates a signed token and returns its claims.
func ParseToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// JWTMiddleware validates the bearer token. The websocket route passes it as ?token= instead.
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Query("token")
		if tokenString == "" {
			authHeader := c.Get("Authorization")
			if authHeader == "" {
				return utils.Error(c, fiber.StatusUnauthorized, "Missing authorization header")
			}
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return utils.Error(c, fiber.StatusUnauthorized, "Invalid authorization header format")
			}
		}

		claims, err := ParseToken(tokenString)
		if err != nil {
			return utils.Error(c, fiber.StatusUnauthorized, "Invalid token")
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*Claims)
		if !ok {
			return utils.Error(c, fiber.StatusUnauthorized, "Missing user claims")
		}
		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}
		return utils.Error(c, fiber.StatusForbidden, "Insufficient permissions")
	}
}

func RequireAdmin() fiber.Handler {
	return RequireRole(models.RoleAdmin)
}

// RequireStaff allows admins and mentors.
func RequireStaff() fiber.Handler {
	return RequireRole(models.RoleAdmin, models.RoleMentor)
}

// RequireSelfOrStaff lets staff through and restricts students to their own enrollment,
// read from the route param or, failing that, the query string.
func RequireSelfOrStaff(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*Claims)
		if !ok {
			return utils.Error(c, fiber.StatusUnauthorized, "Missing user claims")
		}
		if claims.IsStaff() {
			return c.Next()
		}
		want := c.Params(param)
		if want == "" {
			want = c.Query(param)
		}
		if want != "" && !strings.EqualFold(want, claims.Enrollment) {
			return utils.Error(c, fiber.StatusForbidden, "Access denied")
		}
		return c.Next()
	}
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}

// ActorName is the subject of the current caller, or "system".
func ActorName(c *fiber.Ctx) string {
	if claims, ok := c.Locals("claims").(*Claims); ok && claims.Subject != "" {
		return claims.Subject
	}
	return "system"
}
