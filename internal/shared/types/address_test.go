package types

import (
	"strings"
	"testing"
)

func TestAddressValidate(t *testing.T) {
	good := Address{
		Line1:   "12 MG Road",
		City:    "Bengaluru",
		State:   "Karnataka",
		Pincode: "560001",
		Phone:   "9876543210",
	}
	if problems := good.Validate(); problems != nil {
		t.Fatalf("Validate() = %v for a deliverable address", problems)
	}

	tests := []struct {
		name   string
		mutate func(*Address)
		field  string
	}{
		{"missing line1", func(a *Address) { a.Line1 = "" }, "line1"},
		{"missing city", func(a *Address) { a.City = "" }, "city"},
		{"missing state", func(a *Address) { a.State = "" }, "state"},
		{"short pincode", func(a *Address) { a.Pincode = "5600" }, "pincode"},
		{"alpha pincode", func(a *Address) { a.Pincode = "56000a" }, "pincode"},
		{"short phone", func(a *Address) { a.Phone = "98765" }, "phone"},
		{"formatted phone", func(a *Address) { a.Phone = "+919876543210" }, "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := good
			tt.mutate(&a)
			problems := a.Validate()
			if _, ok := problems[tt.field]; !ok {
				t.Errorf("Validate() = %v, want a %q problem", problems, tt.field)
			}
		})
	}
}

func TestAddressNormalize(t *testing.T) {
	a := Address{
		Line1:   "  12 MG Road ",
		City:    " Bengaluru",
		State:   "Karnataka ",
		Pincode: " 560001 ",
		Phone:   " 9876543210",
	}
	a.Normalize()
	if problems := a.Validate(); problems != nil {
		t.Errorf("Validate() after Normalize() = %v", problems)
	}
}

func TestAddressString(t *testing.T) {
	a := Address{
		Line1:   "12 MG Road",
		Line2:   "Flat 4B",
		City:    "Bengaluru",
		State:   "Karnataka",
		Pincode: "560001",
		Phone:   "9876543210",
	}
	got := a.String()
	want := "12 MG Road\nFlat 4B\nBengaluru, Karnataka\nPincode: 560001\nPhone: 9876543210"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	short := Address{Line1: "12 MG Road", City: "Bengaluru", State: "Karnataka", Pincode: "560001"}
	if strings.Contains(short.String(), "Phone:") {
		t.Error("String() renders an empty phone line")
	}
}

func TestParseID(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParseID() = %s, want %s", parsed, id)
	}

	if _, err := ParseID("not-a-uuid"); err == nil {
		t.Error("ParseID() accepted garbage")
	}
	if !ID("").IsZero() {
		t.Error("empty ID is not zero")
	}
}
