package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/report"
)

// EmailChannel sends multipart MIME mail over SMTP. Screenshots are
// embedded inline by CID; CSV and PDF artifacts become attachments.
type EmailChannel struct {
	cfg    config.EmailConfig
	dialer *gomail.Dialer
}

func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.SSL
	return &EmailChannel{cfg: cfg, dialer: dialer}
}

func (c *EmailChannel) Deliver(ctx context.Context, recipient report.Recipient, env *Envelope) error {
	rcfg, err := recipient.Config()
	if err != nil {
		return &StatusError{Code: 422, Err: err}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.cfg.From)
	m.SetHeader("To", splitTargets(rcfg.Target)...)
	m.SetHeader("Subject", subjectFor(env))

	var body strings.Builder
	if env.Description != "" {
		fmt.Fprintf(&body, "<p>%s</p>", env.Description)
	}
	for i := range env.Screenshots {
		fmt.Fprintf(&body, `<img src="cid:screenshot-%d.png" alt="%s"/>`, i, env.Name)
	}
	if env.Frame != nil {
		body.WriteString(htmlTable(env.Frame))
	}
	if env.URL != "" {
		fmt.Fprintf(&body, `<p><a href="%s">Explore in the dashboard</a></p>`, env.URL)
	}
	m.SetBody("text/html", body.String())

	for i, shot := range env.Screenshots {
		m.Embed(fmt.Sprintf("screenshot-%d.png", i), copyBytes(shot))
	}
	if len(env.CSV) > 0 {
		m.Attach(env.Name+".csv", copyBytes(env.CSV))
	}
	if len(env.PDF) > 0 {
		m.Attach(env.Name+".pdf", copyBytes(env.PDF))
	}

	if err := c.dialer.DialAndSend(m); err != nil {
		// SMTP transport failures are server-side
		return &StatusError{Code: 500, Err: err}
	}
	return nil
}

func subjectFor(env *Envelope) string {
	if env.EmailSubject != "" {
		return env.EmailSubject
	}
	return env.Name
}

func splitTargets(target string) []string {
	parts := strings.Split(target, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func copyBytes(data []byte) gomail.FileSetting {
	return gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
