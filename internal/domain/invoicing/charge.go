package invoicing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the ledger direction of a charge
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

// IsValid checks if the type is a valid TransactionType
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// Charge is an immutable line item of exactly one invoice
type Charge struct {
	ID              uuid.UUID
	InvoiceID       uuid.UUID
	Name            string
	Amount          decimal.Decimal
	TransactionType TransactionType
	Description     string
}

// NewDebitCharge builds a debit line item
func NewDebitCharge(name, description string, amount decimal.Decimal) Charge {
	return Charge{
		ID:              uuid.New(),
		Name:            name,
		Amount:          amount,
		TransactionType: TransactionTypeDebit,
		Description:     description,
	}
}

// SignedAmount returns the amount with credits negated
func (c Charge) SignedAmount() decimal.Decimal {
	if c.TransactionType == TransactionTypeCredit {
		return c.Amount.Neg()
	}
	return c.Amount
}
