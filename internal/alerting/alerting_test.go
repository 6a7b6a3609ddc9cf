package alerting

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func testAlert(failures int) RefreshAlert {
	return RefreshAlert{
		Job:                 "eop_refresh",
		Source:              "iers",
		ConsecutiveFailures: failures,
		Attempts:            3,
		LastError:           "eop: source unavailable: status 503",
		TableAge:            12 * 24 * time.Hour,
		Stale:               true,
		Timestamp:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDisabledAlerterSendsNothing(t *testing.T) {
	a := NewAlerter(Config{})
	if a.Enabled() {
		t.Fatalf("alerter without channels should be disabled")
	}
	if err := a.SendRefreshAlert(context.Background(), testAlert(10)); err != nil {
		t.Fatalf("SendRefreshAlert: %v", err)
	}
}

func TestGenericWebhook(t *testing.T) {
	var got map[string]interface{}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewAlerter(Config{WebhookURL: srv.URL, MinConsecutiveFailures: 2})

	if err := a.SendRefreshAlert(context.Background(), testAlert(1)); err != nil {
		t.Fatalf("below threshold: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("alert below threshold should not be sent")
	}

	if err := a.SendRefreshAlert(context.Background(), testAlert(2)); err != nil {
		t.Fatalf("SendRefreshAlert: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one webhook call, got %d", hits.Load())
	}
	if got["alert_type"] != "eop_refresh_failure" || got["source"] != "iers" {
		t.Fatalf("unexpected payload %v", got)
	}
	if got["consecutive_failures"].(float64) != 2 || got["table_age_seconds"].(float64) != 12*24*3600 {
		t.Fatalf("unexpected counters in payload %v", got)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAlerter(Config{WebhookURL: srv.URL, MinConsecutiveFailures: 1})
	err := a.SendRefreshAlert(context.Background(), testAlert(1))
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestWebhookTypeDetection(t *testing.T) {
	cases := map[string]string{
		"https://hooks.slack.com/services/x":   "slack",
		"https://discord.com/api/webhooks/1/x": "discord",
		"https://example.org/hook":             "generic",
	}
	for url, want := range cases {
		if got := (Config{WebhookURL: url}).webhookType(); got != want {
			t.Errorf("%s: got %s, want %s", url, got, want)
		}
	}
	if got := (Config{WebhookURL: "https://hooks.slack.com/x", WebhookType: "generic"}).webhookType(); got != "generic" {
		t.Errorf("explicit type should win, got %s", got)
	}
}

func TestSlackAndDiscordPayloads(t *testing.T) {
	b, err := buildSlackPayload(testAlert(3))
	if err != nil {
		t.Fatalf("slack: %v", err)
	}
	if !strings.Contains(string(b), "EOP refresh failing: iers") || !strings.Contains(string(b), ":x:") {
		t.Fatalf("unexpected slack payload %s", b)
	}

	b, err = buildDiscordPayload(testAlert(3))
	if err != nil {
		t.Fatalf("discord: %v", err)
	}
	var d struct {
		Embeds []struct {
			Title string `json:"title"`
			Color int    `json:"color"`
		} `json:"embeds"`
	}
	if err := json.Unmarshal(b, &d); err != nil {
		t.Fatalf("decode discord payload: %v", err)
	}
	if len(d.Embeds) != 1 || d.Embeds[0].Color != 16711680 {
		t.Fatalf("unexpected discord payload %s", b)
	}
}

func TestSendGridEmail(t *testing.T) {
	var body string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := NewAlerter(Config{
		MinConsecutiveFailures: 1,
		Email: EmailConfig{
			SendGridAPIKey: "SG.test",
			FromName:       "gmeter",
			FromAddress:    "gmeter@example.org",
			To:             []string{"ops@example.org", "oncall@example.org"},
		},
	})
	a.sendgridURL = srv.URL + "/v3/mail/send"
	if !a.Enabled() {
		t.Fatalf("e-mail channel should enable the alerter")
	}

	if err := a.SendRefreshAlert(context.Background(), testAlert(1)); err != nil {
		t.Fatalf("SendRefreshAlert: %v", err)
	}
	if auth != "Bearer SG.test" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	for _, want := range []string{"ops@example.org", "oncall@example.org", "[gmeter] EOP refresh failing: iers"} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %q: %s", want, body)
		}
	}
}

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("GMETER_ALERT_WEBHOOK_URL", "https://example.org/hook")
	t.Setenv("GMETER_ALERT_MIN_FAILURES", "5")
	t.Setenv("GMETER_ALERT_EMAIL_TO", "a@example.org, b@example.org")
	cfg := DefaultConfig()
	if cfg.WebhookURL != "https://example.org/hook" || cfg.MinConsecutiveFailures != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Email.To) != 2 || cfg.Email.To[1] != "b@example.org" {
		t.Fatalf("unexpected recipients %v", cfg.Email.To)
	}
}

func TestRenderEmailEscapesHTML(t *testing.T) {
	alert := testAlert(1)
	alert.LastError = "<script>"
	_, plain, html := renderEmail(alert)
	if !strings.Contains(plain, "<script>") || strings.Contains(html, "<script>") {
		t.Fatalf("html body not escaped: %s", html)
	}
}
