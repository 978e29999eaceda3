package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"campusdesk_go/models"
	"campusdesk_go/utils"

	"github.com/line/line-bot-sdk-go/linebot"
	"gorm.io/gorm"
)

var ErrLineDisabled = errors.New("LINE Bot client is not initialized")

// linePusher is the part of *linebot.Client used for group messages.
type linePusher interface {
	PushMessage(to string, messages ...linebot.SendingMessage) *linebot.PushMessageCall
}

// LineMessagingService posts class notices into the LINE group bound to a class.
type LineMessagingService struct {
	Bot  *linebot.Client
	db   *gorm.DB
	push func(groupID, text string) error
}

// NewLineMessagingService returns a disabled service when the credentials are missing.
func NewLineMessagingService(db *gorm.DB, channelSecret, channelToken string) *LineMessagingService {
	s := &LineMessagingService{db: db}
	if channelSecret == "" || channelToken == "" {
		log.Println("⚠️ LINE Messaging API disabled: missing LINE_CHANNEL_SECRET or LINE_CHANNEL_ACCESS_TOKEN")
		return s
	}

	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		log.Printf("❌ Cannot create LINE bot client: %v", err)
		return s
	}
	s.Bot = bot
	s.push = func(groupID, text string) error {
		return pushText(bot, groupID, text)
	}
	return s
}

func pushText(p linePusher, groupID, text string) error {
	_, err := p.PushMessage(groupID, linebot.NewTextMessage(text)).Do()
	return err
}

// Enabled reports whether messages can be sent.
func (s *LineMessagingService) Enabled() bool {
	return s != nil && s.push != nil
}

// SendLineMessageToGroup sends a text message to a group by GroupID
func (s *LineMessagingService) SendLineMessageToGroup(groupID string, message string) error {
	if !s.Enabled() {
		return ErrLineDisabled
	}
	if err := s.push(groupID, message); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %v", err)
	}
	return nil
}

// SendToClass posts to the LINE group of a class. It returns false when the class has no group.
func (s *LineMessagingService) SendToClass(ctx context.Context, class, message string) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	var group models.ClassGroup
	err := s.db.WithContext(ctx).Where("name = ?", utils.NormalizeClass(class)).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && group.LineGroupID == "") {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, s.SendLineMessageToGroup(group.LineGroupID, message)
}

// NoticeText formats a notice for a LINE group.
func NoticeText(title, message, sender string) string {
	text := fmt.Sprintf("📢 %s\n\n%s", title, message)
	if sender != "" {
		text += "\n\nFrom: " + sender
	}
	return text
}
