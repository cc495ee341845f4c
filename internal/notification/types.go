package notification

import "fmt"

// Kind labels what event a message is about. It feeds metrics and log
// fields, never delivery routing.
type Kind string

// Message kinds.
const (
	KindRegistration       Kind = "registration"
	KindAccountVerified    Kind = "account_verified"
	KindPasswordReset      Kind = "password_reset"
	KindRefillRejected     Kind = "refill_rejected"
	KindMedicineFilled     Kind = "medicine_filled"
	KindMedicineDispatched Kind = "medicine_dispatched"
	KindRefillReminder     Kind = "refill_reminder"
)

// Message is one outbound notification. Email when To is set, SMS when
// Phone is set.
type Message struct {
	Kind    Kind
	To      string
	Phone   string
	Subject string
	Body    string
}

// MedicineFilled builds the email sent when a refill has been filled.
// medicineList is a preformatted block, one "- Name (xN)" line per
// medicine; reminderNote tells the patient when their refill reminder
// lands, or that reminders are off.
func MedicineFilled(email, patientName, medicineList, reminderNote string) Message {
	return Message{
		Kind:    KindMedicineFilled,
		To:      email,
		Subject: "Your medicines have been filled",
		Body: fmt.Sprintf("Dear %s,\n\nYour prescription has been filled with the following medicines:\n\n%s\n%s\n\nYou will be notified when your order is dispatched.",
			patientName, medicineList, reminderNote),
	}
}

// MedicineDispatched builds the email sent when an order leaves the
// pharmacy. medicineList carries the latest fill's lines; address is the
// rendered delivery address.
func MedicineDispatched(email, patientName, medicineList, address string) Message {
	return Message{
		Kind:    KindMedicineDispatched,
		To:      email,
		Subject: "Your order has been dispatched",
		Body: fmt.Sprintf("Dear %s,\n\nThe following medicines have been dispatched:\n\n%s\nThey are on their way to:\n\n%s",
			patientName, medicineList, address),
	}
}

// RefillRejected builds the email sent when a pharmacist rejects a
// refill request.
func RefillRejected(email, patientName, reason string) Message {
	return Message{
		Kind:    KindRefillRejected,
		To:      email,
		Subject: "Your refill request was rejected",
		Body: fmt.Sprintf("Dear %s,\n\nYour refill request has been rejected.\n\nReason: %s\n\nPlease contact your pharmacy for details.",
			patientName, reason),
	}
}

// RefillReminder builds the SMS sent when a refill comes due
func RefillReminder(phone, body string) Message {
	return Message{
		Kind:  KindRefillReminder,
		Phone: phone,
		Body:  body,
	}
}

// Registration builds the welcome email sent after signup
func Registration(email, name string) Message {
	return Message{
		Kind:    KindRegistration,
		To:      email,
		Subject: "Welcome to RxCare",
		Body:    fmt.Sprintf("Dear %s,\n\nYour account has been created. A pharmacist will verify your details shortly.", name),
	}
}

// AccountVerified builds the email sent once a pharmacist verifies an
// account.
func AccountVerified(email, name string) Message {
	return Message{
		Kind:    KindAccountVerified,
		To:      email,
		Subject: "Your account has been verified",
		Body:    fmt.Sprintf("Dear %s,\n\nYour account has been verified. You can now upload prescriptions and request refills.", name),
	}
}

// PasswordReset builds the password reset email
func PasswordReset(email, name, token string) Message {
	return Message{
		Kind:    KindPasswordReset,
		To:      email,
		Subject: "Password reset requested",
		Body:    fmt.Sprintf("Dear %s,\n\nUse the following code to reset your password: %s\n\nIf you did not request this, ignore this message.", name, token),
	}
}
