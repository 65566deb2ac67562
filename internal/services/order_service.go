package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/blockbazaar/api/internal/domain"
	"github.com/blockbazaar/api/internal/repositories"
)

const (
	orderEventCreated           = "order.created"
	orderEventStatusChanged     = "order.status.changed"
	orderEventEvidenceSubmitted = "order.payment.evidence_submitted"

	orderIDPrefix        = "ord_"
	orderItemIDPrefix    = "itm_"
	orderHistoryIDPrefix = "hst_"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderEmptyCart indicates checkout was attempted with no cart items.
	ErrOrderEmptyCart = errors.New("order: cart is empty")
	// ErrOrderCreationFailed indicates the header insert failed; nothing was written.
	ErrOrderCreationFailed = errors.New("order: creation failed")
	// ErrOrderItemsCreationFailed indicates the item insert failed after the
	// header was written; the header has been compensated away.
	ErrOrderItemsCreationFailed = errors.New("order: items creation failed")
	// ErrOrderNotFound indicates the order could not be located, including
	// orders the caller does not own.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnauthorized indicates the caller may not perform the operation.
	ErrOrderUnauthorized = errors.New("order: unauthorized")
	// ErrOrderConflict indicates an expected-status precondition failed.
	ErrOrderConflict = errors.New("order: conflict")
)

// selfCancellableStatuses are the states an owning customer may cancel from.
// Operators may transition from any state.
var selfCancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPendingPaymentVerification,
	domain.OrderStatusConfirmed,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	PaymentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	History     repositories.OrderStatusHistoryRepository
	Numbers     *OrderNumberGenerator
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	carts      repositories.CartRepository
	history    repositories.OrderStatusHistoryRepository
	numbers    *OrderNumberGenerator
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	numbers := deps.Numbers
	if numbers == nil {
		generator, err := NewOrderNumberGenerator(OrderNumberGeneratorDeps{
			Exists: deps.Orders.ExistsByNumber,
			Clock:  clock,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		numbers = generator
	}

	return &orderService{
		orders:     deps.Orders,
		carts:      deps.Carts,
		history:    deps.History,
		numbers:    numbers,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.Principal.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Cart.Items) == 0 {
		return Order{}, fmt.Errorf("%w: cart must contain at least one item", ErrOrderEmptyCart)
	}
	if cartOwner := strings.TrimSpace(cmd.Cart.UserID); cartOwner != "" && cartOwner != userID {
		return Order{}, fmt.Errorf("%w: cart belongs to another user", ErrOrderInvalidInput)
	}
	if !cmd.PaymentMethod.Valid() {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if strings.TrimSpace(cmd.ShippingAddress.Line1) == "" || strings.TrimSpace(cmd.ShippingAddress.Pincode) == "" {
		return Order{}, fmt.Errorf("%w: shipping address with pincode is required", ErrOrderInvalidInput)
	}
	if cmd.BillingAddress != nil && (strings.TrimSpace(cmd.BillingAddress.Line1) == "" || strings.TrimSpace(cmd.BillingAddress.Pincode) == "") {
		return Order{}, fmt.Errorf("%w: billing address must include line1 and pincode", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Contact.Name) == "" || strings.TrimSpace(cmd.Contact.Phone) == "" {
		return Order{}, fmt.Errorf("%w: contact name and phone are required", ErrOrderInvalidInput)
	}
	for _, item := range cmd.Cart.Items {
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %q has non-positive quantity", ErrOrderInvalidInput, item.ProductID)
		}
	}

	now := s.now()
	status, paymentStatus := initialOrderState(cmd.PaymentMethod)

	number, err := s.numbers.Generate(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderCreationFailed, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Cart.Currency))
	if currency == "" {
		currency = "INR"
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     number,
		UserID:          userID,
		Status:          status,
		PaymentMethod:   cmd.PaymentMethod,
		PaymentStatus:   paymentStatus,
		Currency:        currency,
		TotalAmount:     cartTotal(cmd.Cart.Items),
		ShippingAddress: cloneAddress(&cmd.ShippingAddress),
		BillingAddress:  cloneAddress(cmd.BillingAddress),
		Contact:         cloneContact(&cmd.Contact),
		Notes:           strings.TrimSpace(cmd.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	items := s.buildOrderItems(order.ID, cmd.Cart.Items)

	// Header first, then items. Not a transaction: a failed item insert is
	// compensated by deleting the header so the customer never sees a
	// half-created order.
	if err := s.orders.InsertHeader(ctx, order); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderCreationFailed, s.mapRepositoryError(err))
	}

	if err := s.orders.InsertItems(ctx, order.ID, items); err != nil {
		if delErr := s.orders.DeleteHeader(ctx, order.ID); delErr != nil {
			s.logger(ctx, "order.create.compensation.failed", map[string]any{
				"order": order.ID,
				"error": delErr.Error(),
			})
		}
		return Order{}, fmt.Errorf("%w: %v", ErrOrderItemsCreationFailed, s.mapRepositoryError(err))
	}

	order.Items = items
	order.ItemsCount = len(items)

	// Cart is cleared only after the order fully exists. A failed clear is
	// logged rather than surfaced: the order has already been placed.
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.logger(ctx, "order.create.cart_clear.failed", map[string]any{
			"order": order.ID,
			"user":  userID,
			"error": err.Error(),
		})
	}

	s.appendHistory(ctx, domain.OrderStatusHistoryEntry{
		OrderID:    order.ID,
		FromStatus: "",
		ToStatus:   order.Status,
		Note:       "order placed",
		ActorRef:   optionalString(userID),
		CreatedAt:  now,
	})

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"paymentMethod": string(order.PaymentMethod),
			"totalAmount":   order.TotalAmount,
			"itemsCount":    len(items),
		},
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, principal Principal, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !s.canRead(principal, order) {
		// Absence, not denial: a foreign order id reads the same as a
		// missing one.
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}

	if len(order.Items) == 0 && !principal.IsOperator() {
		// Header-only orphan from an interrupted creation. Hidden from
		// customers; operators see it so they can reconcile.
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}

	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, principal Principal, pager Pagination) (domain.CursorPage[OrderSummary], error) {
	userID := strings.TrimSpace(principal.UserID)
	if userID == "" {
		return domain.CursorPage[OrderSummary]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	pager.PageSize = clampPageSize(pager.PageSize)

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     userID,
		Pagination: pager,
	})
	if err != nil {
		return domain.CursorPage[OrderSummary]{}, s.mapRepositoryError(err)
	}

	summaries := make([]OrderSummary, 0, len(page.Items))
	for _, order := range page.Items {
		if order.ItemsCount == 0 && len(order.Items) == 0 {
			// Orphan headers never reach the customer's order list.
			continue
		}
		summaries = append(summaries, order.Summary())
	}

	return domain.CursorPage[OrderSummary]{
		Items:         summaries,
		NextPageToken: page.NextPageToken,
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, principal Principal, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if !principal.IsOperator() {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: operator role required", ErrOrderUnauthorized)
	}

	filter.Pagination.PageSize = clampPageSize(filter.Pagination.PageSize)

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListStatusHistory(ctx context.Context, principal Principal, orderID string, pager Pagination) (domain.CursorPage[OrderStatusHistoryEntry], error) {
	if s.history == nil {
		return domain.CursorPage[OrderStatusHistoryEntry]{}, errors.New("order service: history repository not configured")
	}

	if _, err := s.GetOrder(ctx, principal, orderID); err != nil {
		return domain.CursorPage[OrderStatusHistoryEntry]{}, err
	}

	pager.PageSize = clampPageSize(pager.PageSize)

	page, err := s.history.List(ctx, strings.TrimSpace(orderID), pager)
	if err != nil {
		return domain.CursorPage[OrderStatusHistoryEntry]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	return s.transition(ctx, cmd.Principal, transitionRequest{
		orderID:        cmd.OrderID,
		target:         cmd.TargetStatus,
		note:           cmd.Note,
		expectedStatus: cmd.ExpectedStatus,
	})
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	return s.transition(ctx, cmd.Principal, transitionRequest{
		orderID:        cmd.OrderID,
		target:         domain.OrderStatusCancelled,
		note:           cmd.Reason,
		cancelReason:   strings.TrimSpace(cmd.Reason),
		expectedStatus: cmd.ExpectedStatus,
	})
}

type transitionRequest struct {
	orderID        string
	target         domain.OrderStatus
	note           string
	cancelReason   string
	expectedStatus *domain.OrderStatus
}

func (s *orderService) transition(ctx context.Context, principal Principal, req transitionRequest) (Order, error) {
	orderID := strings.TrimSpace(req.orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !req.target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, req.target)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !s.canRead(principal, order) {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	if err := s.authorizeTransition(principal, order, req.target); err != nil {
		return Order{}, err
	}
	if req.expectedStatus != nil && order.Status != *req.expectedStatus {
		return Order{}, fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *req.expectedStatus, order.Status)
	}

	now := s.now()
	prev := order.Status

	// Transitions are deliberately permissive: any state may move to any
	// other. The payment status is the derived part and is recomputed on
	// every transition, never set directly.
	order.PaymentStatus = domain.DerivePaymentStatus(order.PaymentMethod, order.PaymentStatus, order.Status, req.target)
	order.Status = req.target
	order.UpdatedAt = now

	switch req.target {
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
		if req.cancelReason != "" {
			order.CancelReason = optionalString(req.cancelReason)
		}
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.appendHistory(ctx, domain.OrderStatusHistoryEntry{
		OrderID:    order.ID,
		FromStatus: prev,
		ToStatus:   order.Status,
		Note:       strings.TrimSpace(req.note),
		ActorRef:   optionalString(strings.TrimSpace(principal.UserID)),
		CreatedAt:  now,
	})

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		ActorID:        principal.UserID,
		OccurredAt:     now,
		Metadata:       transitionMetadata(req),
	})

	return order, nil
}

func (s *orderService) authorizeTransition(principal Principal, order Order, target domain.OrderStatus) error {
	if principal.IsOperator() {
		return nil
	}
	if target != domain.OrderStatusCancelled {
		return fmt.Errorf("%w: operator role required for status %q", ErrOrderUnauthorized, target)
	}
	for _, status := range selfCancellableStatuses {
		if order.Status == status {
			return nil
		}
	}
	return fmt.Errorf("%w: order in status %q can no longer be cancelled by the customer", ErrOrderUnauthorized, order.Status)
}

func (s *orderService) canRead(principal Principal, order Order) bool {
	if principal.IsOperator() {
		return true
	}
	userID := strings.TrimSpace(principal.UserID)
	return userID != "" && order.UserID == userID
}

func (s *orderService) buildOrderItems(orderID string, items []CartItem) []OrderItem {
	lines := make([]OrderItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderItem{
			ID:        orderItemIDPrefix + s.newID(),
			OrderID:   orderID,
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      item.Name,
			SKU:       strings.TrimSpace(item.SKU),
			ImageURL:  strings.TrimSpace(item.ImageURL),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.UnitPrice * int64(item.Quantity),
		})
	}
	return lines
}

func (s *orderService) appendHistory(ctx context.Context, entry domain.OrderStatusHistoryEntry) {
	if s.history == nil {
		return
	}
	entry.ID = orderHistoryIDPrefix + s.newID()
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger(ctx, "order.history.append.failed", map[string]any{
			"order": entry.OrderID,
			"to":    string(entry.ToStatus),
			"error": err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// initialOrderState derives the starting lifecycle state from the payment
// method: prepaid transfers wait for manual verification, cash on delivery is
// accepted immediately with payment still outstanding.
func initialOrderState(method PaymentMethod) (domain.OrderStatus, domain.PaymentStatus) {
	if method == domain.PaymentMethodUPI {
		return domain.OrderStatusPendingPaymentVerification, domain.PaymentStatusPending
	}
	return domain.OrderStatusConfirmed, domain.PaymentStatusPending
}

func cartTotal(items []CartItem) int64 {
	var total int64
	for _, item := range items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

func transitionMetadata(req transitionRequest) map[string]any {
	metadata := map[string]any{}
	if note := strings.TrimSpace(req.note); note != "" {
		metadata["note"] = note
	}
	if req.cancelReason != "" {
		metadata["reason"] = req.cancelReason
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func clampPageSize(size int) int {
	if size <= 0 {
		return defaultOrderPageSize
	}
	if size > maxOrderPageSize {
		return maxOrderPageSize
	}
	return size
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	cloned := *addr
	return &cloned
}

func cloneContact(contact *OrderContact) *OrderContact {
	if contact == nil {
		return nil
	}
	cloned := *contact
	return &cloned
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}
