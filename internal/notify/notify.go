// Package notify delivers escalation alerts to emergency contacts over SMS.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Notifier sends an escalation alert to a phone number.
type Notifier interface {
	SendAlert(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sender phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// TwilioNotifier sends alerts through the Twilio SMS API.
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioNotifier creates the notifier, falling back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER when options are not set.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)
	return &TwilioNotifier{client: client, from: cfg.FromNumber}, nil
}

// SendAlert sends one SMS alert.
func (n *TwilioNotifier) SendAlert(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(n.from)
	params.SetBody(body)

	_, err := n.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendAlert failed", "to", to, "error", err)
		return fmt.Errorf("failed to send alert to %s: %w", to, err)
	}
	slog.Debug("Twilio alert sent", "to", to)
	return nil
}

// NoopNotifier discards alerts. Used when Twilio is not configured.
type NoopNotifier struct{}

// SendAlert logs and drops the alert.
func (NoopNotifier) SendAlert(ctx context.Context, to string, body string) error {
	slog.Debug("NoopNotifier dropping alert", "to", to)
	return nil
}

// MockNotifier records alerts for tests.
type MockNotifier struct {
	Alerts []SentAlert
}

// SentAlert is one recorded alert.
type SentAlert struct {
	To   string
	Body string
}

// SendAlert records the alert.
func (m *MockNotifier) SendAlert(ctx context.Context, to string, body string) error {
	m.Alerts = append(m.Alerts, SentAlert{To: to, Body: body})
	return nil
}
