package invoicing

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ProofStorage presigns payment proof objects.
// Implemented by the S3 adapter and a stub for local development.
type ProofStorage interface {
	GenerateUploadURL(ctx context.Context, storageKey, contentType string, expiresIn time.Duration) (string, time.Time, error)
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
}

// ServiceConfig holds presign settings
type ServiceConfig struct {
	URLExpiry time.Duration
}

// Service is the admin-facing invoice workflow: listing, voiding and
// recording payments.
type Service struct {
	repo    invoicing.InvoiceRepository
	storage ProofStorage
	clock   shared.Clock
	config  ServiceConfig
	logger  *zap.Logger
}

// NewService creates an invoice service. storage may be nil, in which case
// payments are listed without proof URLs and uploads are refused.
func NewService(repo invoicing.InvoiceRepository, storage ProofStorage, clock shared.Clock, config ServiceConfig, logger *zap.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if config.URLExpiry <= 0 {
		config.URLExpiry = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, storage: storage, clock: clock, config: config, logger: logger}
}

// List returns a page of invoices
func (s *Service) List(ctx context.Context, filter invoicing.InvoiceFilter) ([]InvoiceResponse, int64, error) {
	invoices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		out[i] = ToInvoiceResponse(&invoices[i])
	}
	return out, total, nil
}

// Get returns one invoice with its charges
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// Void voids an invoice so its period is billed again on the next pass
func (s *Service) Void(ctx context.Context, id uuid.UUID, actor shared.Actor) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "void",
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, id))
	defer span.End()

	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.Void(actor, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Invoice voided",
		zap.String("invoice_id", id.String()),
		zap.String("number", inv.Number),
		zap.String("actor", actor.String()),
	)
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// RecordPayment applies a payment to the invoice and stores the Transaction
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, req RecordPaymentRequest, actor shared.Actor) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "record_payment",
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, id))
	defer span.End()

	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	date := req.Date
	if date.IsZero() {
		date = shared.DateOf(s.clock.Now(), nil)
	}
	payment, err := invoicing.NewTransaction(inv.ID, req.Amount, date, req.Method, req.ProofKey, req.Note, actor)
	if err != nil {
		return nil, err
	}
	if err := inv.ApplyPayment(req.Amount, actor, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.RecordPayment(ctx, inv, payment); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Payment recorded",
		zap.String("invoice_id", id.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("status", inv.Status.String()),
	)
	resp := s.toPaymentResponse(ctx, payment)
	return &resp, nil
}

// ListPayments returns the invoice's payments with presigned proof links
func (s *Service) ListPayments(ctx context.Context, id uuid.UUID) ([]PaymentResponse, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentResponse, len(payments))
	for i := range payments {
		out[i] = s.toPaymentResponse(ctx, &payments[i])
	}
	return out, nil
}

// RequestProofUpload returns a presigned PUT URL for a payment receipt.
// The returned key is then passed as ProofKey when recording the payment.
func (s *Service) RequestProofUpload(ctx context.Context, id uuid.UUID, req ProofUploadRequest) (*ProofUploadResponse, error) {
	if s.storage == nil {
		return nil, shared.NewDomainError("STORAGE_DISABLED", "Payment proof storage is not configured")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}

	key := ProofKey(id, req.FileName)
	url, expiresAt, err := s.storage.GenerateUploadURL(ctx, key, req.ContentType, s.config.URLExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign proof upload: %w", err)
	}
	return &ProofUploadResponse{ProofKey: key, UploadURL: url, ExpiresAt: expiresAt}, nil
}

// ProofKey builds the object key for a receipt attached to an invoice
func ProofKey(invoiceID uuid.UUID, fileName string) string {
	ext := path.Ext(path.Base(fileName))
	return fmt.Sprintf("payment-proofs/%s/%s%s", invoiceID, uuid.NewString(), ext)
}

func (s *Service) toPaymentResponse(ctx context.Context, t *invoicing.Transaction) PaymentResponse {
	resp := ToPaymentResponse(t)
	if t.ProofKey == "" || s.storage == nil {
		return resp
	}
	url, expiresAt, err := s.storage.GenerateDownloadURL(ctx, t.ProofKey, s.config.URLExpiry)
	if err != nil {
		// the payment itself is still valid without a link
		s.logger.Warn("Failed to presign payment proof",
			zap.String("proof_key", t.ProofKey),
			zap.Error(err),
		)
		return resp
	}
	resp.ProofURL = url
	resp.ProofURLExpiresAt = &expiresAt
	return resp
}
