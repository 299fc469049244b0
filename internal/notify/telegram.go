package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts through the Telegram Bot API sendMessage method.
type TelegramSender struct {
	token  string
	chatID string
	rc     *resty.Client
}

// NewTelegramSender creates a TelegramSender. An empty apiURL uses the
// public Bot API.
func NewTelegramSender(apiURL, token, chatID string) *TelegramSender {
	if apiURL == "" {
		apiURL = telegramAPI
	}
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		rc:     resty.New().SetBaseURL(strings.TrimSuffix(apiURL, "/")).SetTimeout(10 * time.Second),
	}
}

// Send posts the message with the title in bold (Markdown).
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	resp, err := t.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetPathParam("token", t.token).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       fmt.Sprintf("*%s*\n%s", title, message),
			"parse_mode": "Markdown",
		}).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), 1024))
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }
