package notification

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

// EmailProvider sends one email
type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSProvider sends one SMS
type SMSProvider interface {
	SendSMS(ctx context.Context, phone, body string) error
}

// LogProvider writes notifications to the process log instead of
// sending them. Default transport for development and limited mode.
type LogProvider struct {
	logger *zap.Logger
}

var (
	_ EmailProvider = (*LogProvider)(nil)
	_ SMSProvider   = (*LogProvider)(nil)
)

// NewLogProvider creates a log-backed notification transport
func NewLogProvider(logger *zap.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

func (p *LogProvider) SendEmail(ctx context.Context, to, subject, body string) error {
	p.logger.Info("email notification",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}

func (p *LogProvider) SendSMS(ctx context.Context, phone, body string) error {
	p.logger.Info("sms notification",
		zap.String("phone", phone),
		zap.String("body", body))
	return nil
}

// SMTPProvider hands email to an SMTP relay. SMS has no production
// transport yet, so it falls through to the log.
type SMTPProvider struct {
	addr string
	from string
	log  *LogProvider
}

var (
	_ EmailProvider = (*SMTPProvider)(nil)
	_ SMSProvider   = (*SMTPProvider)(nil)
)

// NewSMTPProvider creates an SMTP-backed email transport
func NewSMTPProvider(addr, from string, logger *zap.Logger) *SMTPProvider {
	return &SMTPProvider{addr: addr, from: from, log: NewLogProvider(logger)}
}

func (p *SMTPProvider) SendEmail(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", p.from, to, subject, body)
	if err := smtp.SendMail(p.addr, nil, p.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func (p *SMTPProvider) SendSMS(ctx context.Context, phone, body string) error {
	return p.log.SendSMS(ctx, phone, body)
}
