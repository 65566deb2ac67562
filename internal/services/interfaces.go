package services

import (
	"context"
	"time"

	domain "github.com/blockbazaar/api/internal/domain"
	"github.com/blockbazaar/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination              = domain.Pagination
	SortOrder               = domain.SortOrder
	Cart                    = domain.Cart
	CartItem                = domain.CartItem
	Order                   = domain.Order
	OrderItem               = domain.OrderItem
	OrderStatus             = domain.OrderStatus
	OrderContact            = domain.OrderContact
	OrderSummary            = domain.OrderSummary
	OrderStatusHistoryEntry = domain.OrderStatusHistoryEntry
	PaymentMethod           = domain.PaymentMethod
	PaymentStatus           = domain.PaymentStatus
	PaymentEvidence         = domain.PaymentEvidence
	Address                 = domain.Address
	EvidenceUpload          = domain.EvidenceUpload
	SystemHealthReport      = domain.SystemHealthReport
)

// Principal identifies the authenticated caller for owner scoping and
// permission checks. Every operation takes it explicitly; nothing is read
// from ambient state.
type Principal struct {
	UserID string
	Roles  []string
}

// IsOperator reports whether the principal may act on any order.
func (p Principal) IsOperator() bool {
	for _, role := range p.Roles {
		if role == "staff" || role == "admin" {
			return true
		}
	}
	return false
}

// OrderService encapsulates order creation, lifecycle transitions, and
// owner-scoped reads.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error)
	GetOrder(ctx context.Context, principal Principal, orderID string) (Order, error)
	ListUserOrders(ctx context.Context, principal Principal, pager Pagination) (domain.CursorPage[OrderSummary], error)
	ListOrders(ctx context.Context, principal Principal, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListStatusHistory(ctx context.Context, principal Principal, orderID string, pager Pagination) (domain.CursorPage[OrderStatusHistoryEntry], error)
	UpdateStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// PaymentEvidenceService records proof-of-transfer submissions for prepaid orders.
type PaymentEvidenceService interface {
	Submit(ctx context.Context, cmd SubmitPaymentEvidenceCommand) (Order, error)
}

// OrderSweeperService reconciles header-only orphan orders left behind by
// interrupted creations.
type OrderSweeperService interface {
	SweepOnce(ctx context.Context) (SweepResult, error)
	Run(ctx context.Context) error
}

// SystemService aggregates utility endpoints (health checks, build metadata).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// EvidenceUploader stores a payment screenshot and returns its public URL.
type EvidenceUploader interface {
	UploadEvidence(ctx context.Context, upload EvidenceUpload) (string, error)
}

// OrderListFilter narrows admin order listings.
type OrderListFilter = repositories.OrderListFilter

// CreateOrderFromCartCommand freezes a cart snapshot into a new order. The
// billing address is optional; when nil the order carries only the shipping
// address.
type CreateOrderFromCartCommand struct {
	Principal       Principal
	Cart            Cart
	ShippingAddress Address
	BillingAddress  *Address
	Contact         OrderContact
	PaymentMethod   PaymentMethod
	Notes           string
}

// OrderStatusTransitionCommand drives a lifecycle transition.
type OrderStatusTransitionCommand struct {
	Principal      Principal
	OrderID        string
	TargetStatus   OrderStatus
	Note           string
	ExpectedStatus *OrderStatus
}

// CancelOrderCommand cancels an order, recording the reason.
type CancelOrderCommand struct {
	Principal      Principal
	OrderID        string
	Reason         string
	ExpectedStatus *OrderStatus
}

// SubmitPaymentEvidenceCommand records a transfer reference and screenshot.
type SubmitPaymentEvidenceCommand struct {
	Principal     Principal
	OrderID       string
	TransactionID string
	Screenshot    *EvidenceUpload
}

// SweepResult summarises one reconciliation pass over orphan headers.
type SweepResult struct {
	Scanned   int
	Deleted   int
	Failed    int
	Cutoff    time.Time
	StartedAt time.Time
}
