package handler

import (
	"context"

	"github.com/google/uuid"
	appbilling "github.com/kost/backend/internal/application/billing"
	appinvoicing "github.com/kost/backend/internal/application/invoicing"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/infrastructure/scheduler"
	"github.com/stretchr/testify/mock"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunPass(ctx context.Context, opts appbilling.PassOptions) (*appbilling.PassResult, error) {
	args := m.Called(ctx, opts)
	if r := args.Get(0); r != nil {
		return r.(*appbilling.PassResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRunner) LastResult() *appbilling.PassResult {
	args := m.Called()
	if r := args.Get(0); r != nil {
		return r.(*appbilling.PassResult)
	}
	return nil
}

func (m *mockRunner) RecentRuns(ctx context.Context, limit int) ([]billing.Run, error) {
	args := m.Called(ctx, limit)
	if r := args.Get(0); r != nil {
		return r.([]billing.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTrigger) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTrigger) Status() scheduler.Status {
	return m.Called().Get(0).(scheduler.Status)
}

func (m *mockTrigger) TriggerNow(ctx context.Context) (*appbilling.PassResult, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*appbilling.PassResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockInvoiceService struct {
	mock.Mock
}

func (m *mockInvoiceService) List(ctx context.Context, filter invoicing.InvoiceFilter) ([]appinvoicing.InvoiceResponse, int64, error) {
	args := m.Called(ctx, filter)
	if r := args.Get(0); r != nil {
		return r.([]appinvoicing.InvoiceResponse), args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

func (m *mockInvoiceService) Get(ctx context.Context, id uuid.UUID) (*appinvoicing.InvoiceResponse, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*appinvoicing.InvoiceResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoiceService) Void(ctx context.Context, id uuid.UUID, actor shared.Actor) (*appinvoicing.InvoiceResponse, error) {
	args := m.Called(ctx, id, actor)
	if r := args.Get(0); r != nil {
		return r.(*appinvoicing.InvoiceResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoiceService) RecordPayment(ctx context.Context, id uuid.UUID, req appinvoicing.RecordPaymentRequest, actor shared.Actor) (*appinvoicing.PaymentResponse, error) {
	args := m.Called(ctx, id, req, actor)
	if r := args.Get(0); r != nil {
		return r.(*appinvoicing.PaymentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoiceService) ListPayments(ctx context.Context, id uuid.UUID) ([]appinvoicing.PaymentResponse, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.([]appinvoicing.PaymentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoiceService) RequestProofUpload(ctx context.Context, id uuid.UUID, req appinvoicing.ProofUploadRequest) (*appinvoicing.ProofUploadResponse, error) {
	args := m.Called(ctx, id, req)
	if r := args.Get(0); r != nil {
		return r.(*appinvoicing.ProofUploadResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

var (
	_ BillingRunner     = (*mockRunner)(nil)
	_ scheduler.Trigger = (*mockTrigger)(nil)
	_ InvoiceService    = (*mockInvoiceService)(nil)
)
