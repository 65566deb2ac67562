package repositories

import (
	"context"
	"time"

	domain "github.com/blockbazaar/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	OrderStatusHistory() OrderStatusHistoryRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository reads the checkout cart and clears it after a successful order.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderRepository persists order headers and line items and provides query
// helpers for users and admins. Header and item writes are separate steps; the
// compensating DeleteHeader exists for the item-insert failure path.
type OrderRepository interface {
	InsertHeader(ctx context.Context, order domain.Order) error
	InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error
	DeleteHeader(ctx context.Context, orderID string) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ExistsByNumber(ctx context.Context, orderNumber string) (bool, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListOrphanHeaders(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error)
}

// OrderStatusHistoryRepository stores the append-only transition log per order.
type OrderStatusHistoryRepository interface {
	Append(ctx context.Context, entry domain.OrderStatusHistoryEntry) error
	List(ctx context.Context, orderID string, pager domain.Pagination) (domain.CursorPage[domain.OrderStatusHistoryEntry], error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows order listings for both owner and admin queries.
// Search applies a free-text match on order number and customer name.
type OrderListFilter struct {
	UserID        string
	Status        []domain.OrderStatus
	PaymentMethod *domain.PaymentMethod
	Search        string
	DateRange     domain.RangeQuery[time.Time]
	Pagination    domain.Pagination
}
