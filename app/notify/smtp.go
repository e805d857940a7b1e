package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

const resetSubject = "Reset your password"

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSink sends reset links through a plain SMTP relay.
type SMTPSink struct {
	host     string
	port     string
	username string
	password string
	from     string
	send     sendMailFunc
}

func NewSMTPSink(host, port, username, password, from string) *SMTPSink {
	return &SMTPSink{
		host:     strings.TrimSpace(host),
		port:     strings.TrimSpace(port),
		username: username,
		password: password,
		from:     strings.TrimSpace(from),
		send:     smtp.SendMail,
	}
}

func (m *SMTPSink) SendPasswordReset(ctx context.Context, email, resetURL string) error {
	if m.host == "" || m.port == "" || m.from == "" {
		return errors.New("smtp sink missing configuration")
	}
	if strings.ContainsAny(email, "\r\n") {
		return errors.New("invalid recipient address")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var auth smtp.Auth
	if m.username != "" || m.password != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	addr := net.JoinHostPort(m.host, m.port)
	return m.send(addr, auth, m.from, []string{email}, buildResetMessage(m.from, email, resetURL))
}

func buildResetMessage(from, to, resetURL string) []byte {
	body := fmt.Sprintf("Use the following link to reset your password:\r\n\r\n%s\r\n\r\nThe link can be used once and expires soon. If you did not request this, ignore this email.", resetURL)

	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", from))
	message.WriteString(fmt.Sprintf("To: %s\r\n", to))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", resetSubject))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("Content-Transfer-Encoding: 7bit\r\n\r\n")
	message.WriteString(body)
	message.WriteString("\r\n")
	return []byte(message.String())
}
