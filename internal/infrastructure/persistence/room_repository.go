package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/tenancy"
	"github.com/kost/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRoomRepository implements tenancy.RoomRepository using GORM
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GormRoomRepository
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// FindByID finds a room with all of its cost rows
func (r *GormRoomRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenancy.Room, error) {
	var model models.RoomModel
	if err := r.db.WithContext(ctx).
		Preload("Prices").
		Preload("AdditionalPrices").
		Preload("OtherCosts").
		First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Save upserts the room and its cost rows
func (r *GormRoomRepository) Save(ctx context.Context, room *tenancy.Room) error {
	model := models.RoomModelFromDomain(room)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(model).Error; err != nil {
			return translateError(err)
		}
		for i := range model.Prices {
			if err := tx.Save(&model.Prices[i]).Error; err != nil {
				return err
			}
		}
		for i := range model.AdditionalPrices {
			if err := tx.Save(&model.AdditionalPrices[i]).Error; err != nil {
				return err
			}
		}
		for i := range model.OtherCosts {
			if err := tx.Save(&model.OtherCosts[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
