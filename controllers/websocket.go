package controllers

import (
	"campusdesk_go/middleware"
	"campusdesk_go/services/websocket"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// SubjectFor picks the hub key of a connection: the enrollment for students, the token subject otherwise.
func SubjectFor(claims *middleware.Claims) string {
	if claims == nil {
		return ""
	}
	if claims.Enrollment != "" {
		return claims.Enrollment
	}
	return claims.Subject
}

// RequireUpgrade rejects plain HTTP requests to the websocket endpoint.
func (wsc *WebSocketController) RequireUpgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}
	c.Locals("ws_subject", SubjectFor(claims))
	return c.Next()
}

// WebSocketHandler connects an authenticated client to the hub. Authentication happens in
// JWTMiddleware, which reads ?token= because browsers cannot set headers on upgrades.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		subject, _ := c.Locals("ws_subject").(string)
		if subject == "" {
			c.WriteMessage(fiberws.CloseMessage, []byte("missing subject"))
			c.Close()
			return
		}
		logrus.WithField("subject", subject).Debug("websocket connected")
		wsc.hub.ServeFiberWS(c, subject)
	})
}

func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
