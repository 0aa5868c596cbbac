package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramGateway delivers texts through the Telegram Bot API sendMessage
// call. The HTTP client carries its own timeout so a stalled call cannot
// outlive the per-send deadline the scheduler imposes.
type TelegramGateway struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegramGateway constructs a TelegramGateway for the given bot token.
func NewTelegramGateway(token string) *TelegramGateway {
	return &TelegramGateway{
		token:   token,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts one sendMessage call for the recipient.
func (g *TelegramGateway) Send(ctx context.Context, recipient int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: recipient, Text: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", g.baseURL, g.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("telegram API: %s", out.Description)
	}
	return nil
}
