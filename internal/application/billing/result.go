package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome is what happened to one tenant during a pass
type Outcome string

const (
	OutcomeIssued           Outcome = "issued"
	OutcomeSkippedExists    Outcome = "skipped_exists"
	OutcomeSkippedNoInvoice Outcome = "skipped_no_invoice"
	OutcomeSkippedNoPrice   Outcome = "skipped_no_price"
	OutcomeSkippedInactive  Outcome = "skipped_inactive"
	OutcomeFailed           Outcome = "failed"
)

// IsSkip reports whether the outcome is one of the skipped_* values
func (o Outcome) IsSkip() bool {
	switch o {
	case OutcomeSkippedExists, OutcomeSkippedNoInvoice, OutcomeSkippedNoPrice, OutcomeSkippedInactive:
		return true
	}
	return false
}

// TenantResult records one tenant's outcome
type TenantResult struct {
	TenantID    uuid.UUID       `json:"tenant_id"`
	Outcome     Outcome         `json:"outcome"`
	InvoiceID   *uuid.UUID      `json:"invoice_id,omitempty"`
	PeriodStart *time.Time      `json:"period_start,omitempty"`
	PeriodEnd   *time.Time      `json:"period_end,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Error       string          `json:"error,omitempty"`
}

// PassResult summarises one billing pass
type PassResult struct {
	RunID       uuid.UUID      `json:"run_id"`
	Trigger     string         `json:"trigger"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	GateSkipped bool           `json:"gate_skipped"`
	Results     []TenantResult `json:"results"`
	Issued      int            `json:"issued"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
}

// Selected is the number of tenants the pass looked at
func (r *PassResult) Selected() int {
	return len(r.Results)
}

// Duration of the pass
func (r *PassResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *PassResult) add(tr TenantResult) {
	r.Results = append(r.Results, tr)
	switch {
	case tr.Outcome == OutcomeIssued:
		r.Issued++
	case tr.Outcome.IsSkip():
		r.Skipped++
	default:
		r.Failed++
	}
}
