package domain

import "time"

// Pagination carries the standard page controls for list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Address stores a postal address snapshot frozen onto an order, used for
// both the shipping and the optional billing address.
type Address struct {
	Recipient string
	Line1     string
	Line2     *string
	City      string
	State     *string
	Pincode   string
	Phone     *string
}

// Cart holds the items a user has staged for checkout.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem stores a single product entry within a cart.
type CartItem struct {
	ID        string
	ProductID string
	Name      string
	SKU       string
	ImageURL  string
	Quantity  int
	UnitPrice int64
	AddedAt   time.Time
}

// PaymentMethod enumerates supported payment instruments.
type PaymentMethod string

const (
	// PaymentMethodUPI is a prepaid bank transfer the customer proves with evidence.
	PaymentMethodUPI PaymentMethod = "upi"
	// PaymentMethodCOD is cash collected on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
)

// Valid reports whether m is a recognised payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodUPI || m == PaymentMethodCOD
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPendingPaymentVerification indicates the order awaits manual payment review.
	OrderStatusPendingPaymentVerification OrderStatus = "pending_payment_verification"
	// OrderStatusConfirmed indicates payment has been verified and the order is accepted.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared for dispatch.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order has reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusReturned indicates the customer sent the order back.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusCancelled indicates the order was cancelled before completion.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a recognised lifecycle status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPaymentVerification,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusReturned,
		OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus enumerates settlement states derived from the order lifecycle.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not yet been confirmed.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates payment is considered settled.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates payment verification failed or the order was abandoned.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the payment was returned to the customer.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order captures order headers returned to handlers/services.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Currency        string
	TotalAmount     int64
	Items           []OrderItem
	ItemsCount      int
	ShippingAddress *Address
	BillingAddress  *Address
	Contact         *OrderContact
	Notes           string
	Evidence        *PaymentEvidence
	CancelReason    *string
	CancelledAt     *time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem mirrors cart items at the time of checkout. Prices and names are
// frozen copies so later catalog edits never alter a placed order.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Name      string
	SKU       string
	ImageURL  string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// OrderContact stores the customer contact snapshot for delivery coordination.
type OrderContact struct {
	Name  string
	Email string
	Phone string
}

// PaymentEvidence stores the structured proof-of-transfer a customer submits
// for prepaid orders.
type PaymentEvidence struct {
	TransactionID string
	ScreenshotURL string
	SubmittedAt   time.Time
}

// OrderStatusHistoryEntry records a single lifecycle transition.
type OrderStatusHistoryEntry struct {
	ID         string
	OrderID    string
	FromStatus OrderStatus
	ToStatus   OrderStatus
	Note       string
	ActorRef   *string
	CreatedAt  time.Time
}

// OrderSummary is the trimmed projection returned by owner-facing list queries.
type OrderSummary struct {
	ID            string
	OrderNumber   string
	Status        OrderStatus
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	TotalAmount   int64
	Currency      string
	ItemCount     int
	CreatedAt     time.Time
}

// Summary projects the order into its owner-facing list representation. The
// denormalised header count stands in when line items were not loaded.
func (o Order) Summary() OrderSummary {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	if count == 0 {
		count = o.ItemsCount
	}
	return OrderSummary{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		ItemCount:     count,
		CreatedAt:     o.CreatedAt,
	}
}

// DerivePaymentStatus returns the settlement state implied by a lifecycle
// transition. The payment status is never set directly: prepaid transfers
// settle when an operator moves the order from payment review into confirmed,
// cash on delivery settles on delivery. Every other transition keeps the
// current value.
func DerivePaymentStatus(method PaymentMethod, current PaymentStatus, from, to OrderStatus) PaymentStatus {
	switch method {
	case PaymentMethodUPI:
		if from == OrderStatusPendingPaymentVerification && to == OrderStatusConfirmed {
			return PaymentStatusPaid
		}
	case PaymentMethodCOD:
		if to == OrderStatusDelivered {
			return PaymentStatusPaid
		}
	}
	return current
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
