package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/tenancy"
	"github.com/shopspring/decimal"
)

// RoomModel is the persistence model for the Room aggregate root.
type RoomModel struct {
	AggregateModel
	Name             string                 `gorm:"type:varchar(100);not null;uniqueIndex"`
	Size             tenancy.RoomSize       `gorm:"type:varchar(10);not null"`
	Status           tenancy.RoomStatus     `gorm:"type:varchar(20);not null;default:'Available'"`
	Prices           []PriceModel           `gorm:"foreignKey:RoomID;references:ID"`
	AdditionalPrices []AdditionalPriceModel `gorm:"foreignKey:RoomID;references:ID"`
	OtherCosts       []OtherCostModel       `gorm:"foreignKey:RoomID;references:ID"`
}

// TableName returns the table name for GORM
func (RoomModel) TableName() string {
	return "rooms"
}

// ToDomain converts the persistence model to a domain Room, including loaded cost rows.
func (m *RoomModel) ToDomain() *tenancy.Room {
	room := &tenancy.Room{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Name:              m.Name,
		Size:              m.Size,
		Status:            m.Status,
	}
	for i := range m.Prices {
		room.Prices = append(room.Prices, tenancy.Price{CostItem: m.Prices[i].ToDomain()})
	}
	for i := range m.AdditionalPrices {
		room.AdditionalPrices = append(room.AdditionalPrices, tenancy.AdditionalPrice{CostItem: m.AdditionalPrices[i].ToDomain()})
	}
	for i := range m.OtherCosts {
		room.OtherCosts = append(room.OtherCosts, tenancy.OtherCost{CostItem: m.OtherCosts[i].ToDomain()})
	}
	return room
}

// FromDomain populates the persistence model from a domain Room.
// Cost rows are mapped as well so a single Create writes the whole aggregate.
func (m *RoomModel) FromDomain(r *tenancy.Room) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.Name = r.Name
	m.Size = r.Size
	m.Status = r.Status
	m.Prices = make([]PriceModel, 0, len(r.Prices))
	for _, p := range r.Prices {
		m.Prices = append(m.Prices, PriceModel{CostItemModel: costItemModelFromDomain(p.CostItem)})
	}
	m.AdditionalPrices = make([]AdditionalPriceModel, 0, len(r.AdditionalPrices))
	for _, p := range r.AdditionalPrices {
		m.AdditionalPrices = append(m.AdditionalPrices, AdditionalPriceModel{CostItemModel: costItemModelFromDomain(p.CostItem)})
	}
	m.OtherCosts = make([]OtherCostModel, 0, len(r.OtherCosts))
	for _, c := range r.OtherCosts {
		m.OtherCosts = append(m.OtherCosts, OtherCostModel{CostItemModel: costItemModelFromDomain(c.CostItem)})
	}
}

// RoomModelFromDomain creates a new persistence model from a domain Room.
func RoomModelFromDomain(r *tenancy.Room) *RoomModel {
	m := &RoomModel{}
	m.FromDomain(r)
	return m
}

// CostItemModel holds the columns shared by prices, additional prices and other costs.
type CostItemModel struct {
	ID          uuid.UUID          `gorm:"type:uuid;primary_key"`
	RoomID      uuid.UUID          `gorm:"type:uuid;not null;index"`
	Name        string             `gorm:"type:varchar(100)"`
	Description string             `gorm:"type:varchar(255)"`
	Amount      decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	Status      tenancy.CostStatus `gorm:"type:varchar(10);not null;default:'active';index"`
	CreatedAt   time.Time          `gorm:"not null"`
	UpdatedAt   time.Time          `gorm:"not null"`
}

// ToDomain converts the row to a domain CostItem
func (m *CostItemModel) ToDomain() tenancy.CostItem {
	return tenancy.CostItem{
		ID:          m.ID,
		RoomID:      m.RoomID,
		Name:        m.Name,
		Description: m.Description,
		Amount:      m.Amount,
		Status:      m.Status,
	}
}

func costItemModelFromDomain(c tenancy.CostItem) CostItemModel {
	return CostItemModel{
		ID:          c.ID,
		RoomID:      c.RoomID,
		Name:        c.Name,
		Description: c.Description,
		Amount:      c.Amount,
		Status:      c.Status,
	}
}

// PriceModel is the room's base price
type PriceModel struct {
	CostItemModel
}

// TableName returns the table name for GORM
func (PriceModel) TableName() string {
	return "prices"
}

// AdditionalPriceModel is a recurring surcharge on the room
type AdditionalPriceModel struct {
	CostItemModel
}

// TableName returns the table name for GORM
func (AdditionalPriceModel) TableName() string {
	return "additional_prices"
}

// OtherCostModel is any other recurring cost on the room
type OtherCostModel struct {
	CostItemModel
}

// TableName returns the table name for GORM
func (OtherCostModel) TableName() string {
	return "other_costs"
}

// TenantModel is the persistence model for the Tenant aggregate root.
type TenantModel struct {
	AggregateModel
	RoomID     uuid.UUID             `gorm:"type:uuid;not null;index"`
	Name       string                `gorm:"type:varchar(150);not null"`
	Phone      string                `gorm:"type:varchar(30)"`
	Status     tenancy.TenancyStatus `gorm:"type:varchar(10);not null;default:'Waiting';index"`
	StartDate  time.Time             `gorm:"type:date;not null"`
	DueDate    time.Time             `gorm:"type:date;not null"`
	BanishDate *time.Time            `gorm:"type:date"`
	EndDate    *time.Time            `gorm:"type:date"`
	Room       *RoomModel            `gorm:"foreignKey:RoomID;references:ID"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the persistence model to a domain Tenant.
func (m *TenantModel) ToDomain() *tenancy.Tenant {
	return &tenancy.Tenant{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		RoomID:            m.RoomID,
		Name:              m.Name,
		Phone:             m.Phone,
		Status:            m.Status,
		StartDate:         m.StartDate,
		DueDate:           m.DueDate,
		BanishDate:        m.BanishDate,
		EndDate:           m.EndDate,
	}
}

// FromDomain populates the persistence model from a domain Tenant.
func (m *TenantModel) FromDomain(t *tenancy.Tenant) {
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	m.RoomID = t.RoomID
	m.Name = t.Name
	m.Phone = t.Phone
	m.Status = t.Status
	m.StartDate = t.StartDate
	m.DueDate = t.DueDate
	m.BanishDate = t.BanishDate
	m.EndDate = t.EndDate
}

// TenantModelFromDomain creates a new persistence model from a domain Tenant.
func TenantModelFromDomain(t *tenancy.Tenant) *TenantModel {
	m := &TenantModel{}
	m.FromDomain(t)
	return m
}
