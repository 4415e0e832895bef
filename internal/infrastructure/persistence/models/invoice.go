package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/invoice"
)

// InvoiceRecordModel tracks the generated artifact of one order
type InvoiceRecordModel struct {
	BaseModel
	OrderID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	ArtifactName string     `gorm:"type:varchar(255);not null"`
	Size         int64      `gorm:"not null;default:0"`
	GeneratedAt  time.Time  `gorm:"not null;index"`
	EmailedAt    *time.Time `gorm:"index"`
	EmailCount   int        `gorm:"not null;default:0"`
	LastEmailTo  string     `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (InvoiceRecordModel) TableName() string {
	return "invoice_records"
}

// ToDomain converts the persistence model to a domain record
func (m *InvoiceRecordModel) ToDomain() *invoice.Record {
	return &invoice.Record{
		ID:           m.ID,
		OrderID:      m.OrderID,
		ArtifactName: m.ArtifactName,
		Size:         m.Size,
		GeneratedAt:  m.GeneratedAt,
		EmailedAt:    m.EmailedAt,
		EmailCount:   m.EmailCount,
		LastEmailTo:  m.LastEmailTo,
	}
}

// FromDomain populates the persistence model from a domain record
func (m *InvoiceRecordModel) FromDomain(r *invoice.Record) {
	m.ID = r.ID
	m.OrderID = r.OrderID
	m.ArtifactName = r.ArtifactName
	m.Size = r.Size
	m.GeneratedAt = r.GeneratedAt
	m.EmailedAt = r.EmailedAt
	m.EmailCount = r.EmailCount
	m.LastEmailTo = r.LastEmailTo
}

// InvoiceRecordModelFromDomain creates a new persistence model from a domain record
func InvoiceRecordModelFromDomain(r *invoice.Record) *InvoiceRecordModel {
	m := &InvoiceRecordModel{}
	m.FromDomain(r)
	return m
}
