package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/billing"
)

// BillingRunModel records one billing pass
type BillingRunModel struct {
	ID          uuid.UUID         `gorm:"type:uuid;primary_key"`
	TriggeredBy string            `gorm:"type:varchar(20);not null"`
	Status      billing.RunStatus `gorm:"type:varchar(20);not null;index"`
	StartedAt   time.Time         `gorm:"not null;index"`
	FinishedAt  *time.Time
	Selected    int    `gorm:"not null;default:0"`
	Issued      int    `gorm:"not null;default:0"`
	Skipped     int    `gorm:"not null;default:0"`
	Failed      int    `gorm:"not null;default:0"`
	Error       string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (BillingRunModel) TableName() string {
	return "billing_runs"
}

// ToDomain converts the row to a domain Run
func (m *BillingRunModel) ToDomain() *billing.Run {
	return &billing.Run{
		ID:         m.ID,
		Trigger:    m.TriggeredBy,
		Status:     m.Status,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Selected:   m.Selected,
		Issued:     m.Issued,
		Skipped:    m.Skipped,
		Failed:     m.Failed,
		Error:      m.Error,
	}
}

// BillingRunModelFromDomain creates a row from a domain Run
func BillingRunModelFromDomain(r *billing.Run) *BillingRunModel {
	return &BillingRunModel{
		ID:          r.ID,
		TriggeredBy: r.Trigger,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Selected:    r.Selected,
		Issued:      r.Issued,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Error:       r.Error,
	}
}
