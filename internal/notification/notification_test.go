package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type recordingProvider struct {
	mu     sync.Mutex
	emails []string
	sms    []string
	fail   bool
}

func (p *recordingProvider) SendEmail(ctx context.Context, to, subject, body string) error {
	if p.fail {
		return errors.New("relay down")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emails = append(p.emails, to)
	return nil
}

func (p *recordingProvider) SendSMS(ctx context.Context, phone, body string) error {
	if p.fail {
		return errors.New("gateway down")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sms = append(p.sms, phone)
	return nil
}

func TestDeliverRoutesByRecipient(t *testing.T) {
	p := &recordingProvider{}
	n := NewNotifier(p, p, rate.Inf, 1, zap.NewNop())

	if !n.Deliver(context.Background(), Message{Kind: KindMedicineFilled, To: "pat@example.com", Subject: "s", Body: "b"}) {
		t.Error("email delivery returned false")
	}
	if !n.Deliver(context.Background(), Message{Kind: KindRefillReminder, Phone: "9876543210", Body: "b"}) {
		t.Error("sms delivery returned false")
	}

	if len(p.emails) != 1 || p.emails[0] != "pat@example.com" {
		t.Errorf("emails = %v", p.emails)
	}
	if len(p.sms) != 1 || p.sms[0] != "9876543210" {
		t.Errorf("sms = %v", p.sms)
	}
}

func TestDeliverNeverPanicsOnFailure(t *testing.T) {
	p := &recordingProvider{fail: true}
	n := NewNotifier(p, p, rate.Inf, 1, zap.NewNop())

	if n.Deliver(context.Background(), Message{Kind: KindMedicineFilled, To: "pat@example.com"}) {
		t.Error("failed delivery returned true")
	}
}

func TestDeliverRejectsEmptyRecipient(t *testing.T) {
	p := &recordingProvider{}
	n := NewNotifier(p, p, rate.Inf, 1, zap.NewNop())

	if n.Deliver(context.Background(), Message{Kind: KindMedicineFilled}) {
		t.Error("delivery without recipient returned true")
	}
}

func TestDeliverThrottles(t *testing.T) {
	p := &recordingProvider{}
	// burst of 2, no refill within the test
	n := NewNotifier(p, p, rate.Limit(0.001), 2, zap.NewNop())

	sent := 0
	for i := 0; i < 5; i++ {
		if n.Deliver(context.Background(), Message{Kind: KindRefillReminder, Phone: "9876543210", Body: "b"}) {
			sent++
		}
	}
	if sent != 2 {
		t.Errorf("sent %d messages past the limiter, want 2", sent)
	}
}

func TestMessageTemplates(t *testing.T) {
	filled := MedicineFilled("pat@example.com", "Asha", "- Paracetamol (x14)\n", "A refill reminder is scheduled for 20 Mar 2026.")
	if filled.To != "pat@example.com" || filled.Kind != KindMedicineFilled {
		t.Errorf("MedicineFilled header = %+v", filled)
	}
	if !strings.Contains(filled.Body, "- Paracetamol (x14)") {
		t.Errorf("MedicineFilled body missing medicine list: %q", filled.Body)
	}
	if !strings.Contains(filled.Body, "Dear Asha") {
		t.Errorf("MedicineFilled body missing salutation: %q", filled.Body)
	}
	if !strings.Contains(filled.Body, "A refill reminder is scheduled for 20 Mar 2026.") {
		t.Errorf("MedicineFilled body missing reminder note: %q", filled.Body)
	}

	optedOut := MedicineFilled("pat@example.com", "Asha", "- Paracetamol (x14)\n", "Reminders disabled.")
	if !strings.Contains(optedOut.Body, "Reminders disabled.") {
		t.Errorf("MedicineFilled body missing opt-out note: %q", optedOut.Body)
	}

	dispatched := MedicineDispatched("pat@example.com", "Asha", "- Paracetamol (x14)\n", "12 MG Road, Bengaluru")
	if !strings.Contains(dispatched.Body, "- Paracetamol (x14)") {
		t.Errorf("MedicineDispatched body missing medicine list: %q", dispatched.Body)
	}
	if !strings.Contains(dispatched.Body, "12 MG Road, Bengaluru") {
		t.Errorf("MedicineDispatched body missing address: %q", dispatched.Body)
	}

	rejected := RefillRejected("pat@example.com", "Asha", "prescription expired")
	if !strings.Contains(rejected.Body, "prescription expired") {
		t.Errorf("RefillRejected body missing reason: %q", rejected.Body)
	}

	reminder := RefillReminder("9876543210", "time to refill")
	if reminder.Phone != "9876543210" || reminder.To != "" {
		t.Errorf("RefillReminder should be SMS only: %+v", reminder)
	}
}
