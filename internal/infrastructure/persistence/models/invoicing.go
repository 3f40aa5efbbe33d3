package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// The partial unique index allows at most one non-void invoice per tenant and period start.
type InvoiceModel struct {
	AggregateModel
	Number          string                  `gorm:"type:varchar(30);not null;uniqueIndex"`
	TenantID        *uuid.UUID              `gorm:"type:uuid;index;uniqueIndex:idx_invoices_tenant_period_active,where:status <> 'Void'"`
	RoomID          *uuid.UUID              `gorm:"type:uuid;index"`
	PeriodStart     time.Time               `gorm:"type:date;not null;uniqueIndex:idx_invoices_tenant_period_active,where:status <> 'Void'"`
	PeriodEnd       time.Time               `gorm:"type:date;not null;index"`
	IssueDate       time.Time               `gorm:"type:date;not null"`
	DueDate         time.Time               `gorm:"type:date;not null"`
	TotalAmountDue  decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	TotalAmountPaid decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	Status          invoicing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'Draft';index"`
	CreateBy        string                  `gorm:"type:varchar(100);not null"`
	UpdateBy        string                  `gorm:"type:varchar(100);not null"`
	Charges         []ChargeModel           `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice, including loaded charges.
func (m *InvoiceModel) ToDomain() *invoicing.Invoice {
	inv := &invoicing.Invoice{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Number:            m.Number,
		TenantID:          m.TenantID,
		RoomID:            m.RoomID,
		PeriodStart:       m.PeriodStart,
		PeriodEnd:         m.PeriodEnd,
		IssueDate:         m.IssueDate,
		DueDate:           m.DueDate,
		TotalAmountDue:    m.TotalAmountDue,
		TotalAmountPaid:   m.TotalAmountPaid,
		Status:            m.Status,
		CreateBy:          m.CreateBy,
		UpdateBy:          m.UpdateBy,
	}
	if len(m.Charges) > 0 {
		inv.Charges = make([]invoicing.Charge, len(m.Charges))
		for i := range m.Charges {
			inv.Charges[i] = m.Charges[i].ToDomain()
		}
	}
	return inv
}

// FromDomain populates the header columns from a domain Invoice. Charges are
// written separately.
func (m *InvoiceModel) FromDomain(inv *invoicing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.Number = inv.Number
	m.TenantID = inv.TenantID
	m.RoomID = inv.RoomID
	m.PeriodStart = inv.PeriodStart
	m.PeriodEnd = inv.PeriodEnd
	m.IssueDate = inv.IssueDate
	m.DueDate = inv.DueDate
	m.TotalAmountDue = inv.TotalAmountDue
	m.TotalAmountPaid = inv.TotalAmountPaid
	m.Status = inv.Status
	m.CreateBy = inv.CreateBy
	m.UpdateBy = inv.UpdateBy
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *invoicing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// ChargeModel is one line item of an invoice
type ChargeModel struct {
	ID              uuid.UUID                 `gorm:"type:uuid;primary_key"`
	InvoiceID       uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Name            string                    `gorm:"type:varchar(100);not null"`
	Amount          decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	TransactionType invoicing.TransactionType `gorm:"type:varchar(10);not null;default:'debit'"`
	Description     string                    `gorm:"type:varchar(255)"`
	CreatedAt       time.Time                 `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ChargeModel) TableName() string {
	return "charges"
}

// ToDomain converts the row to a domain Charge
func (m *ChargeModel) ToDomain() invoicing.Charge {
	return invoicing.Charge{
		ID:              m.ID,
		InvoiceID:       m.InvoiceID,
		Name:            m.Name,
		Amount:          m.Amount,
		TransactionType: m.TransactionType,
		Description:     m.Description,
	}
}

// ChargeModelFromDomain creates a row from a domain Charge
func ChargeModelFromDomain(c invoicing.Charge) ChargeModel {
	return ChargeModel{
		ID:              c.ID,
		InvoiceID:       c.InvoiceID,
		Name:            c.Name,
		Amount:          c.Amount,
		TransactionType: c.TransactionType,
		Description:     c.Description,
	}
}

// TransactionModel is a payment recorded against an invoice
type TransactionModel struct {
	BaseModel
	InvoiceID uuid.UUID               `gorm:"type:uuid;not null;index"`
	Amount    decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	Date      time.Time               `gorm:"type:date;not null"`
	Method    invoicing.PaymentMethod `gorm:"type:varchar(20);not null"`
	ProofKey  string                  `gorm:"type:varchar(500)"`
	Note      string                  `gorm:"type:text"`
	CreateBy  string                  `gorm:"type:varchar(100);not null"`
}

// TableName returns the table name for GORM
func (TransactionModel) TableName() string {
	return "transactions"
}

// ToDomain converts the row to a domain Transaction
func (m *TransactionModel) ToDomain() *invoicing.Transaction {
	return &invoicing.Transaction{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		InvoiceID: m.InvoiceID,
		Amount:    m.Amount,
		Date:      m.Date,
		Method:    m.Method,
		ProofKey:  m.ProofKey,
		Note:      m.Note,
		CreateBy:  m.CreateBy,
	}
}

// TransactionModelFromDomain creates a row from a domain Transaction
func TransactionModelFromDomain(t *invoicing.Transaction) *TransactionModel {
	m := &TransactionModel{
		InvoiceID: t.InvoiceID,
		Amount:    t.Amount,
		Date:      t.Date,
		Method:    t.Method,
		ProofKey:  t.ProofKey,
		Note:      t.Note,
		CreateBy:  t.CreateBy,
	}
	m.FromDomainBaseEntity(t.BaseEntity)
	return m
}
