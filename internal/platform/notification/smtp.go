package notification

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogEmailSender returns the development sender, which logs instead of
// talking to a mail server.
func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{Logger: logger, From: "dev@localhost"}
}

// SMTPEmailSender delivers mail over plain SMTP with optional AUTH. Addr is
// host:port.
type SMTPEmailSender struct {
	Addr     string
	From     string
	Username string
	Password string
	Logger   zerolog.Logger
}

func NewSMTPEmailSender(addr, from, username, password string, logger zerolog.Logger) *SMTPEmailSender {
	return &SMTPEmailSender{Addr: addr, From: from, Username: username, Password: password, Logger: logger}
}

func (s *SMTPEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	var auth smtp.Auth
	if s.Username != "" {
		host, _, err := net.SplitHostPort(s.Addr)
		if err != nil {
			return fmt.Errorf("smtp addr %q: %w", s.Addr, err)
		}
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}

	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(s.Addr, auth, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	s.Logger.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// LogSheetAppender logs ledger mirror rows instead of appending to a real
// spreadsheet. Stands in wherever no sheets integration is configured.
type LogSheetAppender struct {
	Logger zerolog.Logger
}

func NewLogSheetAppender(logger zerolog.Logger) *LogSheetAppender {
	return &LogSheetAppender{Logger: logger}
}

func (s *LogSheetAppender) AppendRow(_ context.Context, sheet string, row []string) error {
	s.Logger.Info().Str("sheet", sheet).Strs("row", row).Msg("sheet row appended")
	return nil
}
