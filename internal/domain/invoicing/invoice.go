package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "Draft"
	InvoiceStatusIssued        InvoiceStatus = "Issued"
	InvoiceStatusUnpaid        InvoiceStatus = "Unpaid"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PartiallyPaid"
	InvoiceStatusPaid          InvoiceStatus = "Paid"
	InvoiceStatusVoid          InvoiceStatus = "Void"
	InvoiceStatusCancelled     InvoiceStatus = "Cancelled"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusUnpaid,
		InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusVoid,
		InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsVoid reports whether the invoice no longer counts toward billing
func (s InvoiceStatus) IsVoid() bool {
	return s == InvoiceStatusVoid
}

// CanVoid returns true if the invoice can still be voided
func (s InvoiceStatus) CanVoid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusUnpaid:
		return true
	}
	return false
}

// CanReceivePayment returns true if payments may be applied
func (s InvoiceStatus) CanReceivePayment() bool {
	switch s {
	case InvoiceStatusIssued, InvoiceStatusUnpaid, InvoiceStatusPartiallyPaid:
		return true
	}
	return false
}

// Invoice bills a tenant for one period.
// TotalAmountDue equals the sum of the charges at creation time.
type Invoice struct {
	shared.BaseAggregateRoot
	Number          string
	TenantID        *uuid.UUID
	RoomID          *uuid.UUID
	PeriodStart     time.Time
	PeriodEnd       time.Time
	IssueDate       time.Time
	DueDate         time.Time
	TotalAmountDue  decimal.Decimal
	TotalAmountPaid decimal.Decimal
	Status          InvoiceStatus
	CreateBy        string
	UpdateBy        string
	Charges         []Charge
}

// IssueParams carries everything needed to issue an invoice for one period
type IssueParams struct {
	TenantID    uuid.UUID
	RoomID      uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	IssueDate   time.Time
	DueDate     time.Time
	Actor       shared.Actor
}

// Validate checks the period and date fields
func (p IssueParams) Validate() error {
	if p.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if p.PeriodStart.IsZero() || p.PeriodEnd.IsZero() {
		return shared.NewDomainError("INVALID_PERIOD", "Billing period is required")
	}
	if p.PeriodEnd.Before(p.PeriodStart) {
		return shared.NewDomainError("INVALID_PERIOD", "Period end cannot be before period start")
	}
	if p.DueDate.Before(p.IssueDate) {
		return shared.NewDomainError("INVALID_DUE_DATE", "Due date cannot be before issue date")
	}
	return nil
}

// NewIssuedInvoice creates an Issued invoice header with a zero total.
// The total is filled in once the charges are attached.
func NewIssuedInvoice(p IssueParams) (*Invoice, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	actor := p.Actor
	if actor == "" {
		actor = shared.SystemActor
	}
	tenantID := p.TenantID
	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TenantID:          &tenantID,
		PeriodStart:       p.PeriodStart,
		PeriodEnd:         p.PeriodEnd,
		IssueDate:         p.IssueDate,
		DueDate:           p.DueDate,
		TotalAmountDue:    decimal.Zero,
		TotalAmountPaid:   decimal.Zero,
		Status:            InvoiceStatusIssued,
		CreateBy:          actor.String(),
		UpdateBy:          actor.String(),
	}
	if p.RoomID != uuid.Nil {
		roomID := p.RoomID
		inv.RoomID = &roomID
	}
	return inv, nil
}

// AttachCharges binds the charges to this invoice and sets the total to their sum
func (i *Invoice) AttachCharges(charges []Charge) {
	total := decimal.Zero
	attached := make([]Charge, len(charges))
	for idx, c := range charges {
		c.InvoiceID = i.ID
		attached[idx] = c
		total = total.Add(c.SignedAmount())
	}
	i.Charges = attached
	i.TotalAmountDue = total
}

// ChargesTotal sums the signed charge amounts
func (i *Invoice) ChargesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, c := range i.Charges {
		total = total.Add(c.SignedAmount())
	}
	return total
}

// Outstanding returns what is still owed
func (i *Invoice) Outstanding() decimal.Decimal {
	return i.TotalAmountDue.Sub(i.TotalAmountPaid)
}

// Void marks the invoice void so the period can be billed again
func (i *Invoice) Void(actor shared.Actor, now time.Time) error {
	if !i.Status.CanVoid() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot void invoice in %s status", i.Status))
	}
	i.Status = InvoiceStatusVoid
	i.UpdateBy = actor.String()
	i.Touch(now)
	i.IncrementVersion()
	return nil
}

// ApplyPayment records an amount received against the invoice
func (i *Invoice) ApplyPayment(amount decimal.Decimal, actor shared.Actor, now time.Time) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !i.Status.CanReceivePayment() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot record payment on invoice in %s status", i.Status))
	}
	if amount.GreaterThan(i.Outstanding()) {
		return shared.NewDomainError("OVERPAYMENT", "Payment exceeds the outstanding amount")
	}

	i.TotalAmountPaid = i.TotalAmountPaid.Add(amount)
	if i.TotalAmountPaid.Equal(i.TotalAmountDue) {
		i.Status = InvoiceStatusPaid
	} else {
		i.Status = InvoiceStatusPartiallyPaid
	}
	i.UpdateBy = actor.String()
	i.Touch(now)
	i.IncrementVersion()
	return nil
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	shared.Filter
	TenantID *uuid.UUID
	Status   *InvoiceStatus
}

// InvoiceRepository persists invoices with their charges and payments
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, filter InvoiceFilter) ([]Invoice, int64, error)
	Save(ctx context.Context, invoice *Invoice) error
	RecordPayment(ctx context.Context, invoice *Invoice, payment *Transaction) error
	ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Transaction, error)
}
