package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SendGrid's SMTP relay — the recommended STARTTLS submission endpoint;
// this hub only ever holds one outbound mail account, so host/port are
// fixed rather than configurable.
const (
	sendgridHost = "smtp.sendgrid.net"
	sendgridPort = 587
)

// emailSender delivers notifications via STARTTLS-over-smtp.SendMail —
// only the endpoint and credential shape (fixed host, "apikey" literal
// username, API key as password) are specific to SendGrid. Configuration
// names only a destination address (SENDGRID_TO), not a separate sender —
// the same address is reused as the envelope From, since self-notification
// from/to the same operator mailbox is the natural reading with no
// explicit sender field provided.
type emailSender struct {
	apiKey string
	to     string
}

func newEmailSender(apiKey, to string) *emailSender {
	return &emailSender{apiKey: apiKey, to: to}
}

// Send delivers a plain-text email to the configured destination. A sender
// with no configured API key is a silent no-op.
func (s *emailSender) Send(ctx context.Context, subject, body string) error {
	if s.apiKey == "" {
		return nil
	}

	to := []string{s.to}
	msg := buildEmail(s.to, to, subject, body)
	addr := net.JoinHostPort(sendgridHost, fmt.Sprintf("%d", sendgridPort))
	auth := smtp.PlainAuth("", "apikey", s.apiKey, sendgridHost)

	if err := smtp.SendMail(addr, auth, s.to, to, msg); err != nil {
		return fmt.Errorf("%w: smtp.SendMail: %s", ErrSendFailed, err)
	}
	return nil
}

// buildEmail composes a minimal RFC 5322 email message.
func buildEmail(from string, to []string, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}
