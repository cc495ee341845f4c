package notification

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rxcare/platform/internal/shared/config"
	"github.com/rxcare/platform/internal/shared/metrics"
)

// Notifier dispatches messages to the configured transport. Delivery is
// best effort: failures are logged and counted but never propagated, so
// a dead relay cannot fail the workflow that triggered the message.
type Notifier struct {
	email   EmailProvider
	sms     SMSProvider
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewNotifier creates a notifier with explicit providers
func NewNotifier(email EmailProvider, sms SMSProvider, limit rate.Limit, burst int, logger *zap.Logger) *Notifier {
	return &Notifier{
		email:   email,
		sms:     sms,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// FromConfig builds a notifier from the notify configuration
func FromConfig(cfg config.NotifyConfig, logger *zap.Logger) *Notifier {
	var email EmailProvider
	var sms SMSProvider
	switch cfg.Transport {
	case "smtp":
		p := NewSMTPProvider(cfg.SMTPAddr, cfg.From, logger)
		email, sms = p, p
	default:
		p := NewLogProvider(logger)
		email, sms = p, p
	}
	return NewNotifier(email, sms, rate.Limit(cfg.RatePerSecond), cfg.Burst, logger)
}

// Deliver sends one message and reports whether it went out. Throttled
// and failed messages both return false.
func (n *Notifier) Deliver(ctx context.Context, msg Message) bool {
	if !n.limiter.Allow() {
		n.logger.Warn("notification throttled",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.String("phone", msg.Phone))
		metrics.RecordNotification(string(msg.Kind), false)
		return false
	}

	var err error
	switch {
	case msg.Phone != "":
		err = n.sms.SendSMS(ctx, msg.Phone, msg.Body)
	case msg.To != "":
		err = n.email.SendEmail(ctx, msg.To, msg.Subject, msg.Body)
	default:
		n.logger.Warn("notification has no recipient", zap.String("kind", string(msg.Kind)))
		metrics.RecordNotification(string(msg.Kind), false)
		return false
	}

	if err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("kind", string(msg.Kind)),
			zap.Error(err))
		metrics.RecordNotification(string(msg.Kind), false)
		return false
	}

	metrics.RecordNotification(string(msg.Kind), true)
	return true
}
