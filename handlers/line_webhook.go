package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"log"
	"time"

	"campusdesk_go/models"
	"campusdesk_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"gorm.io/gorm"
)

// LineWebhookHandler tracks the LINE groups the bot joins and leaves and binds them to classes.
type LineWebhookHandler struct {
	DB        *gorm.DB
	secret    string
	groupName func(groupID string) (string, error)
	matcher   *services.LineGroupMatcher
}

// NewLineWebhookHandler returns a handler that acknowledges and ignores events when bot is nil.
func NewLineWebhookHandler(db *gorm.DB, secret string, bot *linebot.Client) *LineWebhookHandler {
	h := &LineWebhookHandler{DB: db, secret: secret, matcher: services.NewLineGroupMatcher(db)}
	if bot == nil {
		log.Println("⚠️ LINE credentials missing: webhook disabled")
		return h
	}
	h.groupName = func(groupID string) (string, error) {
		summary, err := bot.GetGroupSummary(groupID).Do()
		if err != nil {
			return "", err
		}
		return summary.GroupName, nil
	}
	return h
}

// Handle verifies the signature, answers 200 and processes the events in the background.
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.groupName == nil {
		return c.SendStatus(fiber.StatusOK)
	}

	signature := c.Get("X-Line-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if !validateLineSignature(h.secret, c.Body(), signature) {
		log.Println("❌ LINE webhook signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	// fasthttp reuses the request buffer once the handler returns
	body := append([]byte(nil), c.Body()...)
	go h.process(body)

	return c.SendStatus(fiber.StatusOK)
}

func (h *LineWebhookHandler) process(body []byte) {
	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &webhook); err != nil {
		log.Printf("❌ Failed to parse LINE events: %v", err)
		return
	}

	joined := false
	for _, event := range webhook.Events {
		if event.Source == nil || event.Source.GroupID == "" {
			continue
		}
		switch event.Type {
		case linebot.EventTypeJoin:
			if h.recordJoin(event.Source.GroupID) {
				joined = true
			}
		case linebot.EventTypeLeave:
			h.recordLeave(event.Source.GroupID)
		}
	}
	if joined {
		h.matcher.MatchLineGroupsToClasses()
	}
}

func (h *LineWebhookHandler) recordJoin(groupID string) bool {
	name, err := h.groupName(groupID)
	if err != nil {
		log.Printf("❌ Failed to get group summary for %s: %v", groupID, err)
		return false
	}

	now := time.Now()
	var group models.LineGroup
	if err := h.DB.Where("group_id = ?", groupID).First(&group).Error; err == nil {
		group.GroupName = name
		group.LastJoinedAt = now
		group.IsActive = true
		group.LastLeftAt = nil
		if err := h.DB.Save(&group).Error; err != nil {
			log.Printf("❌ Failed to update LineGroup %s: %v", groupID, err)
			return false
		}
	} else {
		group = models.LineGroup{GroupID: groupID, GroupName: name, LastJoinedAt: now, IsActive: true}
		if err := h.DB.Create(&group).Error; err != nil {
			log.Printf("❌ Failed to save LineGroup %s: %v", groupID, err)
			return false
		}
	}
	log.Printf("✅ Bot joined group: %s (%s)", name, groupID)
	return true
}

func (h *LineWebhookHandler) recordLeave(groupID string) {
	now := time.Now()
	res := h.DB.Model(&models.LineGroup{}).Where("group_id = ?", groupID).
		Updates(map[string]interface{}{"is_active": false, "last_left_at": &now})
	if res.Error != nil {
		log.Printf("❌ Failed to update LineGroup leave info: %v", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		log.Printf("⚠️ Leave event for unknown group %s", groupID)
		return
	}
	log.Printf("🚪 Bot left group %s", groupID)
}

func lineSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validateLineSignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(lineSignature(secret, body)))
}
