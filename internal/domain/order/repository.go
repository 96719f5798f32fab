package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for order persistence.
// Every method is scoped by tenant.
type Repository interface {
	// Create inserts the order and its items
	Create(ctx context.Context, o *Order) error

	// GetByID retrieves an order with its items
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Order, error)

	// GetForUpdate retrieves an order and locks its row until the surrounding
	// transaction ends. Items are not loaded.
	GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Order, error)

	// UpdateStatus persists status, cancel reason and updated_at
	UpdateStatus(ctx context.Context, o *Order) error

	// List lists orders for a tenant
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
}

// ListFilter defines filters for listing orders
type ListFilter struct {
	TenantID  uuid.UUID
	Status    *Status
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// MenuItem is the catalog view used to price an order at creation time.
type MenuItem struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Name       string
	PriceCents int64
	Available  bool
}

// Catalog resolves menu items for pricing. Menu management lives elsewhere.
type Catalog interface {
	GetMenuItems(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*MenuItem, error)
}
