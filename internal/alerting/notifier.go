package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Readier is implemented by notifiers that can report whether delivery is possible.
type Readier interface {
	Ready(ctx context.Context) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type apiResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Ready calls getMe to confirm the token is accepted.
func (n *TelegramNotifier) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint("getMe"), nil)
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	if err := n.do(req); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	n.logger.Info().Msg("telegram notifier ready")
	return nil
}

// Notify calls the sendMessage API with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    Render(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := n.do(req); err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}

	n.logger.Info().
		Str("notification_id", note.ID.String()).
		Str("kind", string(note.Kind)).
		Int("alerts", len(note.Alerts)).
		Msg("notification sent (telegram)")
	return nil
}

func (n *TelegramNotifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.botToken, method)
}

func (n *TelegramNotifier) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result apiResult
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		if result.Description != "" {
			return fmt.Errorf("ok=false: %s", result.Description)
		}
		return errors.New("ok=false")
	}
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Readier  = (*TelegramNotifier)(nil)
)
