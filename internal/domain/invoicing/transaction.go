package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how a tenant paid
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodEWallet  PaymentMethod = "ewallet"
)

// IsValid checks if the method is a valid PaymentMethod
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodEWallet:
		return true
	}
	return false
}

// Transaction is a payment received against an invoice
type Transaction struct {
	shared.BaseEntity
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	Date      time.Time
	Method    PaymentMethod
	ProofKey  string // object storage key of the transfer receipt
	Note      string
	CreateBy  string
}

// NewTransaction validates and builds a payment record
func NewTransaction(invoiceID uuid.UUID, amount decimal.Decimal, date time.Time, method PaymentMethod, proofKey, note string, actor shared.Actor) (*Transaction, error) {
	if invoiceID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_METHOD", "Invalid payment method")
	}
	if date.IsZero() {
		return nil, shared.NewDomainError("INVALID_DATE", "Payment date is required")
	}
	return &Transaction{
		BaseEntity: shared.NewBaseEntity(),
		InvoiceID:  invoiceID,
		Amount:     amount,
		Date:       date,
		Method:     method,
		ProofKey:   proofKey,
		Note:       note,
		CreateBy:   actor.String(),
	}, nil
}
