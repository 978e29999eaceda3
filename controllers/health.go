package controllers

import (
	"campusdesk_go/services"

	"github.com/gofiber/fiber/v2"
)

// HealthController reports service and dependency health.
type HealthController struct {
	service *services.HealthService
}

func NewHealthController(service *services.HealthService) *HealthController {
	if service == nil {
		service = services.NewHealthService("campusdesk", "")
	}
	return &HealthController{service: service}
}

// GetHealthStatus answers 200 when healthy or degraded and 503 when a required dependency is down.
func (hc *HealthController) GetHealthStatus(c *fiber.Ctx) error {
	report := hc.service.GetHealthReport(c.UserContext())
	return c.Status(hc.service.HTTPStatusForOverall(report.Status)).JSON(report)
}
