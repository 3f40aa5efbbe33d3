package shared

import "time"

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
}

// BaseAggregateRoot provides common fields for aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	Version int
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// NewBaseAggregateRootAt creates a new aggregate root stamped with the given time
func NewBaseAggregateRootAt(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntityAt(now),
		Version:    1,
	}
}

// Actor identifies who created or last changed a record
type Actor string

// SystemActor is the attribution written by automated billing
const SystemActor Actor = "system:billing-engine"

// String returns the actor as stored in createBy/updateBy columns
func (a Actor) String() string {
	return string(a)
}
