// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns. Mappers (ToDomain / FromDomain) convert between the two.
//
// Structure:
// - base.go: BaseModel and AggregateModel
// - tenancy.go: rooms, their cost definitions and tenants
// - invoicing.go: invoices, charges and payment transactions
// - billing.go: billing pass history
package models
