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

// Notifier delivers a formatted alert message.
type Notifier interface {
	Send(ctx context.Context, body string) error
}

// TelegramNotifier posts messages through the Telegram Bot API.
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

// Send calls sendMessage with the alert body.
func (n *TelegramNotifier) Send(ctx context.Context, body string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    "[sensorwatch]\n" + body,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Int("length", len(body)).Msg("alert sent (telegram)")
	return nil
}

// FanoutNotifier sends to every configured channel and joins their errors.
type FanoutNotifier struct {
	channels map[string]Notifier
	order    []string
}

// NewFanoutNotifier returns a notifier over the named channels.
func NewFanoutNotifier() *FanoutNotifier {
	return &FanoutNotifier{channels: make(map[string]Notifier)}
}

// Add registers a channel. Registering the same name twice replaces it.
func (f *FanoutNotifier) Add(name string, n Notifier) {
	if _, exists := f.channels[name]; !exists {
		f.order = append(f.order, name)
	}
	f.channels[name] = n
}

// Len reports the number of channels.
func (f *FanoutNotifier) Len() int {
	return len(f.order)
}

// Send delivers to all channels. A failure on one channel does not stop the
// others; the joined error names each failed channel.
func (f *FanoutNotifier) Send(ctx context.Context, body string) error {
	var errs []error
	for _, name := range f.order {
		if err := f.channels[name].Send(ctx, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*FanoutNotifier)(nil)
)
