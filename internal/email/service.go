// Package email sends review outcome notices to report submitters over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/roadwatch/backend/internal/domain"
	"github.com/roadwatch/backend/internal/metrics"
	"github.com/roadwatch/backend/internal/platform/retry"
)

// EncryptionMode selects the SMTP transport security.
type EncryptionMode string

const (
	EncNone     EncryptionMode = "NONE"
	EncStartTLS EncryptionMode = "STARTTLS"
	EncSSLTLS   EncryptionMode = "SSL/TLS"
)

// ParseEncryptionMode normalizes a configured mode, defaulting to STARTTLS.
func ParseEncryptionMode(s string) EncryptionMode {
	mode := EncryptionMode(strings.ToUpper(strings.TrimSpace(s)))
	switch mode {
	case EncNone, EncStartTLS, EncSSLTLS:
		return mode
	}
	return EncStartTLS
}

// Config holds the SMTP connection settings.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	FromAddr   string
	FromName   string
	Encryption EncryptionMode
}

// Service sends notification emails. A zero-host service is disabled and
// silently skips sends, so deployments without SMTP still work.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an email service from the given config.
func New(cfg Config, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, logger: logger}
}

// Enabled reports whether an SMTP host is configured.
func (s *Service) Enabled() bool {
	return s.cfg.Host != ""
}

var reviewNoticeTmpl = template.Must(template.New("review").Parse(`<html>
<body>
<p>Hello,</p>
<p>Your road damage report has been reviewed.</p>
<table>
<tr><td>Status</td><td>{{.Status}}</td></tr>
<tr><td>Severity</td><td>{{.Severity}}</td></tr>
{{if .Address}}<tr><td>Location</td><td>{{.Address}}</td></tr>{{end}}
{{if .RecommendedAction}}<tr><td>Recommended action</td><td>{{.RecommendedAction}}</td></tr>{{end}}
</table>
<p>Thank you for helping keep the roads safe.</p>
</body>
</html>`))

// SendReviewNotice emails the submitter after an administrator reviewed
// their report. Sends are retried with backoff; a missing recipient or a
// disabled service is not an error.
func (s *Service) SendReviewNotice(ctx context.Context, report *domain.Report) error {
	if !s.Enabled() || report.SubmitterEmail == "" {
		return nil
	}

	var body bytes.Buffer
	if err := reviewNoticeTmpl.Execute(&body, report); err != nil {
		return fmt.Errorf("render review notice: %w", err)
	}

	subject := fmt.Sprintf("Road damage report reviewed: %s", report.Status)

	policy := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			s.logger.Warn("email send failed, retrying",
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)
		},
	}

	err := retry.DoVoid(ctx, policy, func(error) retry.Action { return retry.Retry }, func() error {
		return s.send([]string{report.SubmitterEmail}, subject, body.String())
	})
	if err != nil {
		metrics.EmailSendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("send review notice: %w", err)
	}

	metrics.EmailSendsTotal.WithLabelValues("success").Inc()
	s.logger.Info("review notice sent",
		"report_id", report.ID,
		"status", report.Status,
	)
	return nil
}

func (s *Service) send(to []string, subject, htmlBody string) error {
	address := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	msg := buildMessage(s.cfg.FromName, s.cfg.FromAddr, to, subject, htmlBody)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	switch s.cfg.Encryption {
	case EncSSLTLS:
		conn, err := tls.Dial("tcp", address, &tls.Config{ServerName: s.cfg.Host})
		if err != nil {
			return fmt.Errorf("tls dial: %w", err)
		}
		defer conn.Close()
		client, err := smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			return fmt.Errorf("smtp client: %w", err)
		}
		defer client.Quit()
		return s.transmit(client, auth, to, msg)

	case EncStartTLS:
		client, err := smtp.Dial(address)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		defer client.Quit()
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
		return s.transmit(client, auth, to, msg)

	default:
		if err := smtp.SendMail(address, auth, s.cfg.FromAddr, to, msg); err != nil {
			return fmt.Errorf("sendmail: %w", err)
		}
		return nil
	}
}

func (s *Service) transmit(client *smtp.Client, auth smtp.Auth, to []string, msg []byte) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.FromAddr); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(strings.TrimSpace(rcpt)); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	return w.Close()
}

func buildMessage(fromName, fromAddr string, to []string, subject, htmlBody string) []byte {
	from := fromAddr
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromAddr)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.Bytes()
}
