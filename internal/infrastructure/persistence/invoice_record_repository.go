package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/invoice"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRecordRepository implements invoice.RecordRepository using GORM
type GormInvoiceRecordRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRecordRepository creates a new GormInvoiceRecordRepository
func NewGormInvoiceRecordRepository(db *gorm.DB) *GormInvoiceRecordRepository {
	return &GormInvoiceRecordRepository{db: db}
}

// Save inserts the record, replacing the existing record of the same order.
// The stored row keeps its id, which is copied back into record.
func (r *GormInvoiceRecordRepository) Save(ctx context.Context, record *invoice.Record) error {
	if record == nil {
		return shared.ErrInvalidInput
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	model := models.InvoiceRecordModelFromDomain(record)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"artifact_name", "size", "generated_at",
				"emailed_at", "email_count", "last_email_to", "updated_at",
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	var stored models.InvoiceRecordModel
	if err := r.db.WithContext(ctx).Select("id").Take(&stored, "order_id = ?", record.OrderID).Error; err != nil {
		return err
	}
	record.ID = stored.ID
	return nil
}

// FindByOrderID returns the record of an order
func (r *GormInvoiceRecordRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*invoice.Record, error) {
	var model models.InvoiceRecordModel
	if err := r.db.WithContext(ctx).First(&model, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError(invoice.ErrCodeNotFound, "invoice not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of records, most recently generated first, with the total count
func (r *GormInvoiceRecordRepository) List(ctx context.Context, offset, limit int) ([]invoice.Record, int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InvoiceRecordModel{}).Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.InvoiceRecordModel
	query := r.db.WithContext(ctx).Order("generated_at DESC").Order("id ASC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	records := make([]invoice.Record, len(rows))
	for i := range rows {
		records[i] = *rows[i].ToDomain()
	}
	return records, count, nil
}

var _ invoice.RecordRepository = (*GormInvoiceRecordRepository)(nil)
