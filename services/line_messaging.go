package services

import (
	"errors"
	"fmt"

	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

var ErrLineDisabled = errors.New("LINE messaging is not configured")

// GroupPusher posts a text to a chat group. Ticket creation uses it to tell a department.
type GroupPusher interface {
	PushToGroup(groupID, text string) error
}

// LineMessagingService wraps the LINE Messaging API client.
type LineMessagingService struct {
	Bot *linebot.Client
}

// NewLineMessagingService returns a disabled service when credentials are missing.
func NewLineMessagingService(channelSecret, channelToken string) *LineMessagingService {
	if channelSecret == "" || channelToken == "" {
		logrus.Info("LINE messaging disabled: missing channel secret or access token")
		return &LineMessagingService{}
	}
	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		logrus.WithError(err).Error("cannot create LINE bot client")
		return &LineMessagingService{}
	}
	return &LineMessagingService{Bot: bot}
}

func (s *LineMessagingService) Enabled() bool {
	return s != nil && s.Bot != nil
}

// PushToGroup sends text to the LINE group groupID.
func (s *LineMessagingService) PushToGroup(groupID, text string) error {
	if !s.Enabled() {
		return ErrLineDisabled
	}
	if groupID == "" {
		return fmt.Errorf("empty LINE group id")
	}
	if _, err := s.Bot.PushMessage(groupID, linebot.NewTextMessage(text)).Do(); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %v", err)
	}
	return nil
}

// Reply answers a webhook event; errors are logged only.
func (s *LineMessagingService) Reply(replyToken, text string) {
	if !s.Enabled() || replyToken == "" {
		return
	}
	if _, err := s.Bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).Do(); err != nil {
		logrus.WithError(err).Warn("LINE reply failed")
	}
}
