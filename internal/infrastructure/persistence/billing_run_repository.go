package persistence

import (
	"context"

	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBillingRunRepository implements billing.RunRepository using GORM
type GormBillingRunRepository struct {
	db *gorm.DB
}

// NewGormBillingRunRepository creates a new billing run repository
func NewGormBillingRunRepository(db *gorm.DB) *GormBillingRunRepository {
	return &GormBillingRunRepository{db: db}
}

// RecordRunStart inserts a running pass
func (r *GormBillingRunRepository) RecordRunStart(ctx context.Context, run *billing.Run) error {
	return r.db.WithContext(ctx).Create(models.BillingRunModelFromDomain(run)).Error
}

// RecordRunComplete writes the final status and counters of a pass
func (r *GormBillingRunRepository) RecordRunComplete(ctx context.Context, run *billing.Run) error {
	return r.db.WithContext(ctx).
		Model(&models.BillingRunModel{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":      run.Status,
			"finished_at": run.FinishedAt,
			"selected":    run.Selected,
			"issued":      run.Issued,
			"skipped":     run.Skipped,
			"failed":      run.Failed,
			"error":       run.Error,
		}).Error
}

// ListRecent returns the most recent passes, newest first
func (r *GormBillingRunRepository) ListRecent(ctx context.Context, limit int) ([]billing.Run, error) {
	var rows []models.BillingRunModel
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]billing.Run, len(rows))
	for i := range rows {
		runs[i] = *rows[i].ToDomain()
	}
	return runs, nil
}

// FindLatest returns the most recent pass, or nil when none has run
func (r *GormBillingRunRepository) FindLatest(ctx context.Context) (*billing.Run, error) {
	runs, err := r.ListRecent(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}
