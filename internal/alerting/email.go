package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

func (a *Alerter) sendEmail(alert RefreshAlert) error {
	cfg := a.cfg.Email
	subject, plain, html := renderEmail(alert)

	from := mail.NewEmail(cfg.FromName, cfg.FromAddress)
	p := mail.NewPersonalization()
	for _, to := range cfg.To {
		p.AddTos(mail.NewEmail("", to))
	}
	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = subject
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/plain", plain), mail.NewContent("text/html", html))

	client := sendgrid.NewSendClient(cfg.SendGridAPIKey)
	if a.sendgridURL != "" {
		client.BaseURL = a.sendgridURL
	}
	resp, err := client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func renderEmail(alert RefreshAlert) (subject, plain, html string) {
	subject = "[gmeter] " + alert.title()

	var b strings.Builder
	fmt.Fprintf(&b, "The EOP table from %s could not be refreshed.\n\n", alert.Source)
	fmt.Fprintf(&b, "Consecutive failures: %d\n", alert.ConsecutiveFailures)
	fmt.Fprintf(&b, "Attempts in last run: %d\n", alert.Attempts)
	fmt.Fprintf(&b, "Last success: %s\n", alert.lastSuccess())
	fmt.Fprintf(&b, "Table age: %s (stale: %t)\n", alert.TableAge.Round(time.Minute), alert.Stale)
	fmt.Fprintf(&b, "Last error: %s\n", alert.LastError)
	plain = b.String()

	html = "<pre>" + strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(plain) + "</pre>"
	return subject, plain, html
}
