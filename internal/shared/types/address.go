package types

import (
	"regexp"
	"strings"
)

var (
	pincodePattern = regexp.MustCompile(`^\d{6}$`)
	phonePattern   = regexp.MustCompile(`^\d{10}$`)
)

// Address is a delivery address snapshot. Refill requests copy the address
// at request time so later edits to a patient profile never change where an
// in-flight order is shipped.
type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
}

// Normalize trims surrounding whitespace on all fields.
func (a *Address) Normalize() {
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	a.Phone = strings.TrimSpace(a.Phone)
}

// Validate checks the address fields and returns a field->problem map,
// empty when the address is deliverable.
func (a Address) Validate() map[string]string {
	problems := make(map[string]string)
	if strings.TrimSpace(a.Line1) == "" {
		problems["line1"] = "address line 1 is required"
	}
	if strings.TrimSpace(a.City) == "" {
		problems["city"] = "city is required"
	}
	if strings.TrimSpace(a.State) == "" {
		problems["state"] = "state is required"
	}
	if !pincodePattern.MatchString(a.Pincode) {
		problems["pincode"] = "pincode must be 6 digits"
	}
	if !phonePattern.MatchString(a.Phone) {
		problems["phone"] = "phone must be 10 digits"
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// String renders the postal form used in dispatch notifications.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(a.Line1)
	if a.Line2 != "" {
		b.WriteString("\n")
		b.WriteString(a.Line2)
	}
	b.WriteString("\n")
	b.WriteString(a.City)
	b.WriteString(", ")
	b.WriteString(a.State)
	b.WriteString("\nPincode: ")
	b.WriteString(a.Pincode)
	if a.Phone != "" {
		b.WriteString("\nPhone: ")
		b.WriteString(a.Phone)
	}
	return b.String()
}
