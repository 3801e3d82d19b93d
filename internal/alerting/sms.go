package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SMSNotifier sends text messages through the Twilio Messages API.
type SMSNotifier struct {
	accountSID string
	authToken  string
	from       string
	to         []string
	baseURL    string
	client     *http.Client
	logger     zerolog.Logger
}

// SMSOptions configure an SMSNotifier.
type SMSOptions struct {
	AccountSID string
	AuthToken  string
	From       string
	To         []string
	BaseURL    string
	Timeout    time.Duration
}

// NewSMSNotifier constructs a Twilio SMS notifier.
func NewSMSNotifier(opts SMSOptions, logger zerolog.Logger) *SMSNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.twilio.com"
	}

	return &SMSNotifier{
		accountSID: opts.AccountSID,
		authToken:  opts.AuthToken,
		from:       opts.From,
		to:         opts.To,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		client:     &http.Client{Timeout: opts.Timeout},
		logger:     logger.With().Str("component", "alert_sms").Logger(),
	}
}

// Send texts body to every recipient. It stops at the first failure.
func (n *SMSNotifier) Send(ctx context.Context, body string) error {
	if len(n.to) == 0 {
		return fmt.Errorf("sms: no recipients configured")
	}
	for _, to := range n.to {
		if err := n.sendOne(ctx, to, body); err != nil {
			return err
		}
	}
	n.logger.Info().Int("recipients", len(n.to)).Int("length", len(body)).Msg("alert sent (sms)")
	return nil
}

func (n *SMSNotifier) sendOne(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", n.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.baseURL, url.PathEscape(n.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(n.accountSID, n.authToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("sms unexpected status %d: %s (code %d)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("sms unexpected status: %d", resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*SMSNotifier)(nil)
