package tenancy

import (
	"context"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RoomSize is the size class of a room
type RoomSize string

const (
	RoomSizeSmall  RoomSize = "Small"
	RoomSizeMedium RoomSize = "Medium"
	RoomSizeLarge  RoomSize = "Large"
)

// IsValid checks if the size is a valid RoomSize
func (s RoomSize) IsValid() bool {
	switch s {
	case RoomSizeSmall, RoomSizeMedium, RoomSizeLarge:
		return true
	}
	return false
}

// RoomStatus is the occupancy state of a room
type RoomStatus string

const (
	RoomStatusAvailable   RoomStatus = "Available"
	RoomStatusOccupied    RoomStatus = "Occupied"
	RoomStatusMaintenance RoomStatus = "Maintenance"
)

// IsValid checks if the status is a valid RoomStatus
func (s RoomStatus) IsValid() bool {
	switch s {
	case RoomStatusAvailable, RoomStatusOccupied, RoomStatusMaintenance:
		return true
	}
	return false
}

// CostStatus flags whether a cost definition feeds billing
type CostStatus string

const (
	CostStatusActive   CostStatus = "active"
	CostStatusInactive CostStatus = "inactive"
)

// IsValid checks if the status is a valid CostStatus
func (s CostStatus) IsValid() bool {
	return s == CostStatusActive || s == CostStatusInactive
}

// CostItem holds the fields shared by all room cost definitions
type CostItem struct {
	ID          uuid.UUID
	RoomID      uuid.UUID
	Name        string
	Description string
	Amount      decimal.Decimal
	Status      CostStatus
}

// IsActive reports whether the cost is eligible for new charges
func (c CostItem) IsActive() bool {
	return c.Status == CostStatusActive
}

// Price is the base rent of a room. A room has at most one active price.
type Price struct {
	CostItem
}

// AdditionalPrice is an optional recurring add-on such as WiFi or laundry
type AdditionalPrice struct {
	CostItem
}

// OtherCost is any other recurring cost attached to the room
type OtherCost struct {
	CostItem
}

// NewCostItem validates and builds a cost definition
func NewCostItem(roomID uuid.UUID, name, description string, amount decimal.Decimal) (CostItem, error) {
	if roomID == uuid.Nil {
		return CostItem{}, shared.NewDomainError("INVALID_ROOM", "Room ID cannot be empty")
	}
	if amount.IsNegative() {
		return CostItem{}, shared.NewDomainError("INVALID_AMOUNT", "Amount cannot be negative")
	}
	return CostItem{
		ID:          uuid.New(),
		RoomID:      roomID,
		Name:        name,
		Description: description,
		Amount:      amount,
		Status:      CostStatusActive,
	}, nil
}

// Room is a rentable room together with its cost definitions
type Room struct {
	shared.BaseAggregateRoot
	Name             string
	Size             RoomSize
	Status           RoomStatus
	Prices           []Price
	AdditionalPrices []AdditionalPrice
	OtherCosts       []OtherCost
}

// NewRoom creates an available room
func NewRoom(name string, size RoomSize) (*Room, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Room name cannot be empty")
	}
	if !size.IsValid() {
		return nil, shared.NewDomainError("INVALID_SIZE", "Invalid room size")
	}
	return &Room{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Size:              size,
		Status:            RoomStatusAvailable,
	}, nil
}

// ActivePrice returns the room's active price, if any
func (r *Room) ActivePrice() (Price, bool) {
	for _, p := range r.Prices {
		if p.IsActive() {
			return p, true
		}
	}
	return Price{}, false
}

// ActiveAdditionalPrices returns the active add-ons in definition order
func (r *Room) ActiveAdditionalPrices() []AdditionalPrice {
	out := make([]AdditionalPrice, 0, len(r.AdditionalPrices))
	for _, p := range r.AdditionalPrices {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

// ActiveOtherCosts returns the active other costs in definition order
func (r *Room) ActiveOtherCosts() []OtherCost {
	out := make([]OtherCost, 0, len(r.OtherCosts))
	for _, c := range r.OtherCosts {
		if c.IsActive() {
			out = append(out, c)
		}
	}
	return out
}

// RoomRepository persists rooms with their cost definitions
type RoomRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Room, error)
	Save(ctx context.Context, room *Room) error
}
