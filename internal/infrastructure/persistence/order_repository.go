package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOrderRepository reads order snapshots for invoicing using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindInvoiceSnapshot loads an order with its customer and its items in display order
func (r *GormOrderRepository) FindInvoiceSnapshot(ctx context.Context, orderID uuid.UUID) (*invoice.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Customer").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&model, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError(invoice.ErrCodeNotFound, "order not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var _ invoice.OrderRepository = (*GormOrderRepository)(nil)
