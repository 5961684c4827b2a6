// Package notify delivers trade and error alerts. The only transport
// is the Telegram Bot API; a disabled notifier swallows sends so
// callers never branch on configuration.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier delivers one text message.
type Notifier interface {
	Send(text string) error
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client

	// baseURL is overridable for tests.
	baseURL string
}

// Compile-time interface check.
var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a notifier. When enabled is false, Send
// is a no-op.
func NewTelegramNotifier(botToken, chatID string, enabled bool) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		enabled:  enabled,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  "https://api.telegram.org",
	}
}

// Send posts the message to the configured chat.
func (t *TelegramNotifier) Send(text string) error {
	if !t.enabled {
		return nil
	}
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram: bot token and chat id are required")
	}

	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
