package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ChargeResponse is one invoice line
type ChargeResponse struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType string          `json:"transaction_type"`
}

// InvoiceResponse is the API view of an invoice
type InvoiceResponse struct {
	ID              uuid.UUID        `json:"id"`
	Number          string           `json:"number"`
	TenantID        *uuid.UUID       `json:"tenant_id,omitempty"`
	RoomID          *uuid.UUID       `json:"room_id,omitempty"`
	PeriodStart     string           `json:"period_start"`
	PeriodEnd       string           `json:"period_end"`
	IssueDate       string           `json:"issue_date"`
	DueDate         string           `json:"due_date"`
	TotalAmountDue  decimal.Decimal  `json:"total_amount_due"`
	TotalAmountPaid decimal.Decimal  `json:"total_amount_paid"`
	Outstanding     decimal.Decimal  `json:"outstanding"`
	Status          string           `json:"status"`
	CreateBy        string           `json:"create_by"`
	UpdateBy        string           `json:"update_by"`
	Charges         []ChargeResponse `json:"charges,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ToInvoiceResponse maps a domain invoice to its API view
func ToInvoiceResponse(inv *invoicing.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:              inv.ID,
		Number:          inv.Number,
		TenantID:        inv.TenantID,
		RoomID:          inv.RoomID,
		PeriodStart:     inv.PeriodStart.Format(dateLayout),
		PeriodEnd:       inv.PeriodEnd.Format(dateLayout),
		IssueDate:       inv.IssueDate.Format(dateLayout),
		DueDate:         inv.DueDate.Format(dateLayout),
		TotalAmountDue:  inv.TotalAmountDue,
		TotalAmountPaid: inv.TotalAmountPaid,
		Outstanding:     inv.Outstanding(),
		Status:          inv.Status.String(),
		CreateBy:        inv.CreateBy,
		UpdateBy:        inv.UpdateBy,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
	for _, c := range inv.Charges {
		resp.Charges = append(resp.Charges, ChargeResponse{
			ID:              c.ID,
			Name:            c.Name,
			Description:     c.Description,
			Amount:          c.Amount,
			TransactionType: string(c.TransactionType),
		})
	}
	return resp
}

// RecordPaymentRequest is the input for recording a payment
type RecordPaymentRequest struct {
	Amount   decimal.Decimal         `json:"amount"`
	Date     time.Time               `json:"date"`
	Method   invoicing.PaymentMethod `json:"method" binding:"required,oneof=cash transfer ewallet"`
	ProofKey string                  `json:"proof_key" binding:"omitempty,max=512"`
	Note     string                  `json:"note" binding:"omitempty,max=500"`
}

// PaymentResponse is the API view of a payment Transaction
type PaymentResponse struct {
	ID                uuid.UUID       `json:"id"`
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	Amount            decimal.Decimal `json:"amount"`
	Date              string          `json:"date"`
	Method            string          `json:"method"`
	ProofKey          string          `json:"proof_key,omitempty"`
	ProofURL          string          `json:"proof_url,omitempty"`
	ProofURLExpiresAt *time.Time      `json:"proof_url_expires_at,omitempty"`
	Note              string          `json:"note,omitempty"`
	CreateBy          string          `json:"create_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ToPaymentResponse maps a payment to its API view without a proof link
func ToPaymentResponse(t *invoicing.Transaction) PaymentResponse {
	return PaymentResponse{
		ID:        t.ID,
		InvoiceID: t.InvoiceID,
		Amount:    t.Amount,
		Date:      t.Date.Format(dateLayout),
		Method:    string(t.Method),
		ProofKey:  t.ProofKey,
		Note:      t.Note,
		CreateBy:  t.CreateBy,
		CreatedAt: t.CreatedAt,
	}
}

// ProofUploadRequest asks for a presigned receipt upload
type ProofUploadRequest struct {
	FileName    string `json:"file_name" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"required,oneof=image/jpeg image/png application/pdf"`
}

// ProofUploadResponse carries the presigned upload target
type ProofUploadResponse struct {
	ProofKey  string    `json:"proof_key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
