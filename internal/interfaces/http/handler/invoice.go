package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appinvoicing "github.com/kost/backend/internal/application/invoicing"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
)

// InvoiceService is the invoice workflow used by the admin API
type InvoiceService interface {
	List(ctx context.Context, filter invoicing.InvoiceFilter) ([]appinvoicing.InvoiceResponse, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*appinvoicing.InvoiceResponse, error)
	Void(ctx context.Context, id uuid.UUID, actor shared.Actor) (*appinvoicing.InvoiceResponse, error)
	RecordPayment(ctx context.Context, id uuid.UUID, req appinvoicing.RecordPaymentRequest, actor shared.Actor) (*appinvoicing.PaymentResponse, error)
	ListPayments(ctx context.Context, id uuid.UUID) ([]appinvoicing.PaymentResponse, error)
	RequestProofUpload(ctx context.Context, id uuid.UUID, req appinvoicing.ProofUploadRequest) (*appinvoicing.ProofUploadResponse, error)
}

// InvoiceHandler handles invoice and payment endpoints
type InvoiceHandler struct {
	BaseHandler
	service InvoiceService
}

// NewInvoiceHandler creates an InvoiceHandler
func NewInvoiceHandler(service InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

type listInvoicesQuery struct {
	TenantID string `form:"tenant_id" binding:"omitempty,uuid"`
	Status   string `form:"status" binding:"omitempty,oneof=Draft Issued Unpaid PartiallyPaid Paid Void Cancelled"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// List returns a page of invoices filtered by tenant and status
func (h *InvoiceHandler) List(c *gin.Context) {
	var q listInvoicesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter := invoicing.InvoiceFilter{Filter: shared.DefaultFilter()}
	if q.Page > 0 {
		filter.Page = q.Page
	}
	if q.PageSize > 0 {
		filter.PageSize = q.PageSize
	}
	if q.TenantID != "" {
		id := uuid.MustParse(q.TenantID)
		filter.TenantID = &id
	}
	if q.Status != "" {
		status := invoicing.InvoiceStatus(q.Status)
		filter.Status = &status
	}

	invoices, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, invoices, total, filter.Page, filter.PageSize)
}

// Get returns one invoice with its charges
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// Void cancels an invoice that has not been paid
func (h *InvoiceHandler) Void(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.Void(c.Request.Context(), id, middleware.GetActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// recordPaymentBody takes the payment date as a calendar date string
type recordPaymentBody struct {
	Amount   decimal.Decimal         `json:"amount"`
	Date     string                  `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Method   invoicing.PaymentMethod `json:"method" binding:"required,oneof=cash transfer ewallet"`
	ProofKey string                  `json:"proof_key" binding:"omitempty,max=512"`
	Note     string                  `json:"note" binding:"omitempty,max=500"`
}

// RecordPayment stores a payment Transaction against the invoice
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var body recordPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	req := appinvoicing.RecordPaymentRequest{
		Amount:   body.Amount,
		Method:   body.Method,
		ProofKey: body.ProofKey,
		Note:     body.Note,
	}
	if body.Date != "" {
		// format already checked by the datetime binding
		req.Date, _ = time.Parse(time.DateOnly, body.Date)
	}

	payment, err := h.service.RecordPayment(c.Request.Context(), id, req, middleware.GetActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, payment)
}

// ListPayments returns the invoice's payments with presigned proof links
func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	payments, err := h.service.ListPayments(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payments)
}

// RequestProofUpload returns a presigned upload URL for a payment receipt
func (h *InvoiceHandler) RequestProofUpload(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req appinvoicing.ProofUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	resp, err := h.service.RequestProofUpload(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
