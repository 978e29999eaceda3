package utils

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultPerPage = 25
	MaxPerPage     = 200
)

// Paging is the resolved page window of a list request.
type Paging struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

// Offset returns the row offset for the page.
func (p Paging) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// ResolvePaging reads page and per_page (or limit) from the query string, clamped to MaxPerPage.
func ResolvePaging(c *fiber.Ctx) Paging {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	raw := strings.TrimSpace(c.Query("per_page"))
	if raw == "" {
		raw = c.Query("limit")
	}
	per, err := strconv.Atoi(raw)
	if err != nil || per < 1 {
		per = DefaultPerPage
	}
	if per > MaxPerPage {
		per = MaxPerPage
	}
	return Paging{Page: page, PerPage: per}
}
