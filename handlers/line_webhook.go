package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"schoolreports_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

// Replier answers a webhook event.
type Replier interface {
	Reply(replyToken, text string)
}

type LineWebhookHandler struct {
	secret  string
	matcher *services.LineGroupMatcher
	replier Replier
}

// NewLineWebhookHandler returns a handler that acknowledges and ignores events when secret is empty.
func NewLineWebhookHandler(secret string, matcher *services.LineGroupMatcher, replier Replier) *LineWebhookHandler {
	return &LineWebhookHandler{secret: secret, matcher: matcher, replier: replier}
}

// Handle verifies the X-Line-Signature header and processes join and "#dept" message events.
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.secret == "" {
		logrus.Debug("LINE webhook received while LINE is disabled")
		return c.SendStatus(fiber.StatusOK)
	}

	signature := c.Get("X-Line-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if !validateSignature(h.secret, c.Body(), signature) {
		logrus.WithField("ip", c.IP()).Warn("LINE webhook signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(c.Body(), &webhook); err != nil {
		logrus.WithError(err).Warn("failed to parse LINE webhook body")
		return c.SendStatus(fiber.StatusBadRequest)
	}
	for _, event := range webhook.Events {
		h.handleEvent(event)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *LineWebhookHandler) handleEvent(event *linebot.Event) {
	if event == nil || event.Source == nil {
		return
	}
	groupID := event.Source.GroupID

	switch event.Type {
	case linebot.EventTypeJoin:
		logrus.WithField("group_id", groupID).Info("bot joined LINE group; send \"#dept <slug>\" to link it")
	case linebot.EventTypeLeave:
		logrus.WithField("group_id", groupID).Info("bot left LINE group")
	case linebot.EventTypeMessage:
		msg, ok := event.Message.(*linebot.TextMessage)
		if !ok || event.Source.Type != linebot.EventSourceTypeGroup || groupID == "" {
			return
		}
		ref, ok := services.ParseBindCommand(msg.Text)
		if !ok {
			return
		}
		d, err := h.matcher.Bind(groupID, ref)
		switch {
		case errors.Is(err, services.ErrNotFound):
			h.reply(event.ReplyToken, fmt.Sprintf("لم يتم العثور على قسم باسم \"%s\"", ref))
		case err != nil:
			logrus.WithError(err).WithField("group_id", groupID).Error("failed to bind LINE group")
		default:
			h.reply(event.ReplyToken, fmt.Sprintf("تم ربط هذه المجموعة بقسم %s", d.Name))
		}
	}
}

func (h *LineWebhookHandler) reply(token, text string) {
	if h.replier != nil {
		h.replier.Reply(token, text)
	}
}

// computeSignature is the base64 HMAC-SHA256 of body, as LINE signs it.
func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validateSignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(computeSignature(secret, body)))
}
