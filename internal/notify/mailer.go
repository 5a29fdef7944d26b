// Package notify mails produced report links to the stored recipients.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/kalambet/increp/internal/report"
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether enough is configured to send mail.
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

var bodyTmpl = template.Must(template.New("report").Parse(
	`<p>A new incident report is ready: <a href="{{.URL}}">{{.Name}}</a></p>` +
		`<p>Response row {{.Row}}.</p>`))

// Mailer sends one message per report to every recipient.
type Mailer struct {
	cfg    Config
	send   func(m ...*gomail.Message) error
	logger *slog.Logger
}

// NewMailer creates a Mailer that dials cfg's SMTP server for each report.
func NewMailer(cfg Config) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{cfg: cfg, send: dialer.DialAndSend, logger: slog.Default()}
}

// ReportReady mails the report link.
func (m *Mailer) ReportReady(_ context.Context, a report.Artifact, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}
	msg, err := m.message(a, recipients)
	if err != nil {
		return err
	}
	if err := m.send(msg); err != nil {
		return fmt.Errorf("sending report mail: %w", err)
	}
	m.logger.Info("report mailed", "row", a.Row, "recipients", len(recipients))
	return nil
}

// message renders the body. The link comes from the file store, which may
// use the increp:// scheme, so it is passed as a trusted URL.
func (m *Mailer) message(a report.Artifact, recipients []string) (*gomail.Message, error) {
	var body bytes.Buffer
	err := bodyTmpl.Execute(&body, struct {
		Name string
		URL  template.URL
		Row  int
	}{a.PDF.Name, template.URL(a.PDF.URL), a.Row})
	if err != nil {
		return nil, fmt.Errorf("rendering report mail: %w", err)
	}

	msg := gomail.NewMessage(gomail.SetEncoding(gomail.Unencoded))
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", "Incident report: "+a.PDF.Name)
	msg.SetBody("text/html", body.String())
	return msg, nil
}
