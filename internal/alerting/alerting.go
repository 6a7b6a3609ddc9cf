package alerting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Config holds alerting configuration.
type Config struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string `yaml:"webhook_url"`
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string `yaml:"webhook_type"`
	// MinConsecutiveFailures is the number of failed refresh runs in a row
	// before an alert is sent.
	MinConsecutiveFailures int `yaml:"min_consecutive_failures"`
	// Timeout for HTTP requests
	Timeout time.Duration `yaml:"timeout"`

	Email EmailConfig `yaml:"email"`
}

// EmailConfig configures the SendGrid e-mail channel.
type EmailConfig struct {
	SendGridAPIKey string   `yaml:"sendgrid_api_key"`
	FromName       string   `yaml:"from_name"`
	FromAddress    string   `yaml:"from_address"`
	To             []string `yaml:"to"`
}

func (e EmailConfig) enabled() bool {
	return e.SendGridAPIKey != "" && e.FromAddress != "" && len(e.To) > 0
}

// DefaultConfig returns config from environment variables.
func DefaultConfig() Config {
	cfg := Config{
		WebhookURL:             os.Getenv("GMETER_ALERT_WEBHOOK_URL"),
		WebhookType:            os.Getenv("GMETER_ALERT_WEBHOOK_TYPE"),
		MinConsecutiveFailures: 3,
		Timeout:                10 * time.Second,
		Email: EmailConfig{
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			FromName:       "gmeter",
			FromAddress:    os.Getenv("GMETER_ALERT_EMAIL_FROM"),
		},
	}
	if v := os.Getenv("GMETER_ALERT_MIN_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MinConsecutiveFailures = n
		}
	}
	for _, addr := range strings.Split(os.Getenv("GMETER_ALERT_EMAIL_TO"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			cfg.Email.To = append(cfg.Email.To, addr)
		}
	}
	return cfg
}

// webhookType auto-detects the payload format from the URL when unset.
func (c Config) webhookType() string {
	if c.WebhookType != "" {
		return c.WebhookType
	}
	switch {
	case strings.Contains(c.WebhookURL, "slack.com"):
		return "slack"
	case strings.Contains(c.WebhookURL, "discord.com"):
		return "discord"
	}
	return "generic"
}

// Alerter sends refresh-failure alerts to a webhook and/or by e-mail.
type Alerter struct {
	cfg         Config
	client      *http.Client
	sendgridURL string
}

func NewAlerter(cfg Config) *Alerter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MinConsecutiveFailures <= 0 {
		cfg.MinConsecutiveFailures = 1
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether any channel is configured.
func (a *Alerter) Enabled() bool {
	return a.cfg.WebhookURL != "" || a.cfg.Email.enabled()
}

// Threshold is the number of consecutive failures that triggers an alert.
func (a *Alerter) Threshold() int { return a.cfg.MinConsecutiveFailures }

// RefreshAlert describes a run of failed EOP table refreshes.
type RefreshAlert struct {
	Job                 string        `json:"job"`
	Source              string        `json:"source"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Attempts            int           `json:"attempts"`
	LastError           string        `json:"last_error"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	TableAge            time.Duration `json:"-"`
	Stale               bool          `json:"stale"`
	Timestamp           time.Time     `json:"timestamp"`
}

func (r RefreshAlert) title() string {
	return fmt.Sprintf("EOP refresh failing: %s", r.Source)
}

func (r RefreshAlert) lastSuccess() string {
	if r.LastSuccess.IsZero() {
		return "never"
	}
	return r.LastSuccess.Format(time.RFC3339)
}

// SendRefreshAlert delivers alert on every configured channel. Alerts below
// the consecutive failure threshold are dropped.
func (a *Alerter) SendRefreshAlert(ctx context.Context, alert RefreshAlert) error {
	if !a.Enabled() {
		log.Printf("alerting: alerts disabled, skipping")
		return nil
	}
	if alert.ConsecutiveFailures < a.cfg.MinConsecutiveFailures {
		log.Printf("alerting: %d consecutive failures below threshold (%d), skipping",
			alert.ConsecutiveFailures, a.cfg.MinConsecutiveFailures)
		return nil
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	var errs []error
	if a.cfg.WebhookURL != "" {
		if err := a.sendWebhook(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		}
	}
	if a.cfg.Email.enabled() {
		if err := a.sendEmail(alert); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("alerting: %w", err)
	}

	log.Printf("alerting: sent alert for %s after %d consecutive failures", alert.Source, alert.ConsecutiveFailures)
	return nil
}

func (a *Alerter) sendWebhook(ctx context.Context, alert RefreshAlert) error {
	var payload []byte
	var err error

	switch a.cfg.webhookType() {
	case "slack":
		payload, err = buildSlackPayload(alert)
	case "discord":
		payload, err = buildDiscordPayload(alert)
	default:
		payload, err = buildGenericPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildSlackPayload(alert RefreshAlert) ([]byte, error) {
	emoji := ":warning:"
	if alert.Stale {
		emoji = ":x:"
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s %s", emoji, alert.title()),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Consecutive failures:*\n%d", alert.ConsecutiveFailures)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Last success:*\n%s", alert.lastSuccess())},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Table age:*\n%s", alert.TableAge.Round(time.Minute))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Last error:*\n%s", alert.LastError),
				},
			},
		},
	}

	return json.Marshal(payload)
}

func buildDiscordPayload(alert RefreshAlert) ([]byte, error) {
	color := 16776960 // Yellow
	if alert.Stale {
		color = 16711680 // Red
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       alert.title(),
				"description": alert.LastError,
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Consecutive failures", "value": strconv.Itoa(alert.ConsecutiveFailures), "inline": true},
					{"name": "Last success", "value": alert.lastSuccess(), "inline": true},
					{"name": "Table age", "value": alert.TableAge.Round(time.Minute).String(), "inline": true},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}

	return json.Marshal(payload)
}

func buildGenericPayload(alert RefreshAlert) ([]byte, error) {
	payload := struct {
		AlertType string `json:"alert_type"`
		RefreshAlert
		TableAgeSeconds int64 `json:"table_age_seconds"`
	}{
		AlertType:       "eop_refresh_failure",
		RefreshAlert:    alert,
		TableAgeSeconds: int64(alert.TableAge.Seconds()),
	}
	return json.Marshal(payload)
}
