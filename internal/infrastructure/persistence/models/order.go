package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/invoice"
)

// CustomerModel is the persistence model for a storefront customer
type CustomerModel struct {
	BaseModel
	Name    string `gorm:"type:varchar(200);not null"`
	Email   string `gorm:"type:varchar(255);index"`
	Address string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// OrderModel is the persistence model for a placed order
type OrderModel struct {
	BaseModel
	CustomerID   uuid.UUID        `gorm:"type:uuid;not null;index"`
	Customer     CustomerModel    `gorm:"foreignKey:CustomerID;references:ID"`
	Brand        string           `gorm:"type:varchar(100)"`
	SerialNumber string           `gorm:"type:varchar(100)"`
	Items        []OrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
	TotalAmount  decimal.Decimal  `gorm:"type:decimal(18,2);not null;default:0"`
	PlacedAt     time.Time        `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the order and its preloaded customer and items into the
// snapshot an invoice is rendered from
func (m *OrderModel) ToDomain() *invoice.Order {
	order := &invoice.Order{
		ID:            m.ID,
		CustomerName:  m.Customer.Name,
		CustomerEmail: m.Customer.Email,
		Address:       m.Customer.Address,
		Brand:         m.Brand,
		SerialNumber:  m.SerialNumber,
		Total:         m.TotalAmount,
		PlacedAt:      m.PlacedAt,
		Items:         make([]invoice.LineItem, len(m.Items)),
	}
	for i := range m.Items {
		order.Items[i] = m.Items[i].ToDomain()
	}
	return order
}

// OrderItemModel is one line of an order. Position keeps the display order.
type OrderItemModel struct {
	BaseModel
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_order_items_order_position,priority:1"`
	Position     int             `gorm:"not null;index:idx_order_items_order_position,priority:2"`
	Name         string          `gorm:"type:varchar(200);not null"`
	Distributor  string          `gorm:"type:varchar(200)"`
	Model        string          `gorm:"type:varchar(100)"`
	SerialNumber string          `gorm:"type:varchar(100)"`
	Quantity     int             `gorm:"not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	LineTotal    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the item to an invoice line item
func (m *OrderItemModel) ToDomain() invoice.LineItem {
	return invoice.LineItem{
		Name:         m.Name,
		Distributor:  m.Distributor,
		Model:        m.Model,
		SerialNumber: m.SerialNumber,
		Qty:          m.Quantity,
		Price:        m.UnitPrice,
		Total:        m.LineTotal,
	}
}
