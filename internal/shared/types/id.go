package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID identifies prescriptions, requests, medicines and users. It is a
// UUID kept in string form so it travels through JSON and SQL without
// conversion, with the type alias preventing one aggregate's ID from
// being handed to another's repository.
type ID string

// NewID returns a fresh random ID
func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID validates s as a UUID and returns it as an ID
func ParseID(s string) (ID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid ID %q: %w", s, err)
	}
	return ID(s), nil
}

// MustParseID is ParseID for static identifiers; it panics on bad input
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string { return string(id) }

// IsZero reports the absent ID
func (id ID) IsZero() bool { return id == "" }

// Value serializes for SQL; the zero ID becomes NULL
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	return string(id), nil
}

// Scan reads an ID back from SQL, accepting NULL as the zero ID
func (id *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*id = ""
	case string:
		*id = ID(v)
	case []byte:
		*id = ID(v)
	default:
		return fmt.Errorf("cannot scan %T into ID", src)
	}
	return nil
}
