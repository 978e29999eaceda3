package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// CheckPassword compares a password with its hash
func CheckPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// IsBcryptHash reports whether a stored password is already hashed.
func IsBcryptHash(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// GenerateRandomString generates a random hex string of specified length
func GenerateRandomString(length int) (string, error) {
	bytes := make([]byte, (length+1)/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes)[:length], nil
}

// GenerateCode returns prefix-xxxxxx with six random hex characters, e.g. "A-3f9c01".
func GenerateCode(prefix string) string {
	s, err := GenerateRandomString(6)
	if err != nil {
		s = strings.ToLower(hex.EncodeToString([]byte(time.Now().Format("150405")))[:6])
	}
	return prefix + "-" + s
}

// NormalizeClass uppercases a class name and strips everything but letters and digits.
func NormalizeClass(class string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(class) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Percentage returns round(part/total*100, 2), or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return Round2(float64(part) / float64(total) * 100)
}

// Today returns the current local date as YYYY-MM-DD.
func Today() string {
	return time.Now().Format("2006-01-02")
}

// IsValidDate checks a YYYY-MM-DD date string.
func IsValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// IsValidFileExtension checks if file extension is allowed
func IsValidFileExtension(filename string, allowedExtensions []string) bool {
	if filename == "" {
		return false
	}

	parts := strings.Split(filename, ".")
	if len(parts) < 2 {
		return false
	}

	ext := strings.ToLower(parts[len(parts)-1])

	for _, allowedExt := range allowedExtensions {
		if ext == strings.ToLower(allowedExt) {
			return true
		}
	}
	return false
}

// SanitizeString removes dangerous characters from string
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// EnrollmentRange expands "0101CS221001".."0101CS221060" into every enrollment in between.
// The last three characters are the running number and the rest is a shared prefix.
func EnrollmentRange(start, end string) ([]string, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if len(start) < 4 || len(end) < 4 {
		return nil, fmt.Errorf("start and end must end with a 3-digit number")
	}
	prefix := start[:len(start)-3]
	if end[:len(end)-3] != prefix {
		return nil, fmt.Errorf("start and end must share the prefix %q", prefix)
	}
	from, err := strconv.Atoi(start[len(start)-3:])
	if err != nil {
		return nil, fmt.Errorf("invalid start number: %w", err)
	}
	to, err := strconv.Atoi(end[len(end)-3:])
	if err != nil {
		return nil, fmt.Errorf("invalid end number: %w", err)
	}
	if to < from {
		return nil, fmt.Errorf("end must not be before start")
	}
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s%03d", prefix, i))
	}
	return out, nil
}
