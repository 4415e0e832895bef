// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Structure:
//   - base.go: BaseModel shared by every table
//   - order.go: customers, orders and order items (read side of the invoice snapshot)
//   - invoice.go: invoice records tracking generated artifacts
package models
