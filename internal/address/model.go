package address

import (
	"github.com/google/uuid"
)

type Address struct {
	ID uuid.UUID
	// UserID is nil for order snapshots.
	UserID *uint

	Name         string
	ReceiverName string
	Phone        string

	Address1 string
	Address2 *string

	City     string
	Province string
	Postal   string
	Country  string

	IsDefault bool
	IsActive  bool
}

// Snapshot returns a detached copy with a fresh id and no owner.
func (a *Address) Snapshot() *Address {
	cp := *a
	cp.ID = uuid.New()
	cp.UserID = nil
	cp.IsDefault = false
	cp.IsActive = true
	if a.Address2 != nil {
		line := *a.Address2
		cp.Address2 = &line
	}
	return &cp
}
