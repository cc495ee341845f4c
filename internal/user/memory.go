package user

import (
	"context"
	"strings"
	"sync"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// MemoryDirectory is an in-memory Directory for limited mode and tests
type MemoryDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]*User
	byID    map[types.ID]*User
}

var _ Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty in-memory directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byEmail: make(map[string]*User),
		byID:    make(map[types.ID]*User),
	}
}

// Add registers a user, assigning an ID when missing
func (d *MemoryDirectory) Add(u *User) *User {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ID.IsZero() {
		u.ID = types.NewID()
	}
	d.byEmail[strings.ToLower(u.Email)] = u
	d.byID[u.ID] = u
	return u
}

// LookupByEmail resolves a user by email
func (d *MemoryDirectory) LookupByEmail(_ context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, errors.NotFound("user", email)
	}
	return u, nil
}

// LookupByID resolves a user by id
func (d *MemoryDirectory) LookupByID(_ context.Context, id types.ID) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, errors.NotFound("user", id.String())
	}
	return u, nil
}
