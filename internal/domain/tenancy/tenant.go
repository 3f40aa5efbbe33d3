package tenancy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/shared"
)

// TenancyStatus represents where a tenant is in their stay
type TenancyStatus string

const (
	TenancyStatusWaiting  TenancyStatus = "Waiting"  // Booked, not moved in yet
	TenancyStatusActive   TenancyStatus = "Active"   // Living in the room, billable
	TenancyStatusInactive TenancyStatus = "Inactive" // Moved out
)

// IsValid checks if the status is a valid TenancyStatus
func (s TenancyStatus) IsValid() bool {
	switch s {
	case TenancyStatusWaiting, TenancyStatusActive, TenancyStatusInactive:
		return true
	}
	return false
}

// String returns the string representation of TenancyStatus
func (s TenancyStatus) String() string {
	return string(s)
}

// Tenant is a person renting a room.
// Tenants are never deleted by billing; moving out only flips the status.
type Tenant struct {
	shared.BaseAggregateRoot
	RoomID     uuid.UUID
	Name       string
	Phone      string
	Status     TenancyStatus
	StartDate  time.Time
	DueDate    time.Time
	BanishDate *time.Time
	EndDate    *time.Time
}

// NewTenant creates a waiting tenant for a room
func NewTenant(roomID uuid.UUID, name, phone string, startDate time.Time) (*Tenant, error) {
	if roomID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ROOM", "Room ID cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Tenant name cannot be empty")
	}
	if startDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_START_DATE", "Start date is required")
	}

	return &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		RoomID:            roomID,
		Name:              name,
		Phone:             phone,
		Status:            TenancyStatusWaiting,
		StartDate:         startDate,
		DueDate:           startDate,
	}, nil
}

// Activate marks the tenant as moved in
func (t *Tenant) Activate(now time.Time) error {
	if t.Status != TenancyStatusWaiting {
		return shared.NewDomainError("INVALID_STATE", "Only waiting tenants can be activated")
	}
	t.Status = TenancyStatusActive
	t.Touch(now)
	t.IncrementVersion()
	return nil
}

// MoveOut ends the tenancy
func (t *Tenant) MoveOut(endDate, now time.Time) error {
	if t.Status == TenancyStatusInactive {
		return shared.NewDomainError("INVALID_STATE", "Tenant has already moved out")
	}
	if endDate.Before(t.StartDate) {
		return shared.NewDomainError("INVALID_END_DATE", "End date cannot be before start date")
	}
	t.Status = TenancyStatusInactive
	t.EndDate = &endDate
	t.Touch(now)
	t.IncrementVersion()
	return nil
}

// IsBillable reports whether the billing engine may issue invoices for the tenant
func (t *Tenant) IsBillable() bool {
	return t.Status == TenancyStatusActive
}

// TenantRepository persists tenants
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	Save(ctx context.Context, tenant *Tenant) error
}
