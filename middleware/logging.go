package middleware

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"campusdesk_go/database"
	"campusdesk_go/models"
	"campusdesk_go/services"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const activityLogTTL = 24 * time.Hour

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		}).Info("HTTP Request")

		return err
	}
}

// LogActivity records an audit entry for the current caller. The entry is cached in Redis
// and flushed to the database by the scheduler; without Redis it is written directly.
func LogActivity(c *fiber.Ctx, action, resource, resourceID string, details interface{}) {
	entry := models.ActivityLog{
		ActorID:    "system",
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}
	if claims, ok := c.Locals("claims").(*Claims); ok {
		entry.ActorID = claims.Subject
		entry.ActorRole = claims.Role
	}
	now := time.Now()
	entry.CreatedAt = now

	meta := map[string]interface{}{
		"details":        details,
		"integrity_hash": integrityHash(entry),
		"request_id":     c.Get("X-Request-ID", uuid.NewString()),
		"forwarded_for":  c.Get("X-Forwarded-For"),
		"method":         c.Method(),
		"path":           c.Path(),
		"query":          string(c.Request().URI().QueryString()),
		"status_code":    c.Response().StatusCode(),
		"timestamp_utc":  now.UTC().Unix(),
	}
	if raw, err := json.Marshal(meta); err == nil {
		entry.Details = raw
	}

	go func(al models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cacheActivityLog(ctx, database.GetRedisClient(), al); err != nil {
			logrus.WithError(err).Debug("activity log cache unavailable, writing to database")
			if database.DB == nil {
				logrus.Error("database.DB is nil; cannot save activity log")
				return
			}
			if dbErr := database.DB.WithContext(ctx).Create(&al).Error; dbErr != nil {
				logrus.WithError(dbErr).Error("Failed to save activity log to database")
			}
		}
	}(entry)
}

func integrityHash(l models.ActivityLog) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%s:%s",
		l.ActorID, l.Action, l.Resource, l.ResourceID, l.IPAddress, l.UserAgent, l.CreatedAt.Format(time.RFC3339))
	return fmt.Sprintf("%x", md5.Sum([]byte(data)))
}

// cacheActivityLog stores the entry under a 24h key and queues the key for the flush job.
func cacheActivityLog(ctx context.Context, client *redis.Client, l models.ActivityLog) error {
	if client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	key := fmt.Sprintf("log:%s:%s:%d", l.ActorID, l.Action, time.Now().UnixNano())
	if err := client.Set(ctx, key, data, activityLogTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache log: %w", err)
	}
	if err := client.ZAdd(ctx, services.ActivityLogQueueKey, &redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: key,
	}).Err(); err != nil {
		logrus.WithError(err).Error("Failed to add log to processing queue")
	}
	return nil
}

// LogActivityMiddleware records successful mutating requests outside the auth and login routes.
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if c.Method() == fiber.MethodGet || strings.Contains(path, "/auth/") || strings.HasSuffix(path, "/login") {
			return c.Next()
		}

		err := c.Next()

		action := ActionForMethod(c.Method())
		if action == "" || c.Response().StatusCode() >= 400 {
			return err
		}
		resourceID := c.Params("id")
		if resourceID == "" {
			resourceID = c.Params("enrollment")
		}
		LogActivity(c, action, ResourceFromPath(path), resourceID, nil)
		return err
	}
}

// ActionForMethod maps an HTTP method to an audit action.
func ActionForMethod(method string) string {
	switch method {
	case fiber.MethodPost:
		return "CREATE"
	case fiber.MethodPut, fiber.MethodPatch:
		return "UPDATE"
	case fiber.MethodDelete:
		return "DELETE"
	}
	return ""
}

// ResourceFromPath returns the first segment after /api.
func ResourceFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "api" {
		return parts[1]
	}
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}
