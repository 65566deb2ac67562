package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/blockbazaar/api/internal/domain"
	"github.com/blockbazaar/api/internal/platform/auth"
	"github.com/blockbazaar/api/internal/platform/httpx"
	"github.com/blockbazaar/api/internal/repositories"
	"github.com/blockbazaar/api/internal/services"
)

const maxCheckoutBodySize = 64 * 1024

// cartReader loads the caller's staged cart for checkout. Satisfied by the
// cart repository.
type cartReader interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
}

type checkoutAddressRequest struct {
	Recipient string  `json:"recipient"`
	Line1     string  `json:"line1"`
	Line2     *string `json:"line2"`
	City      string  `json:"city"`
	State     *string `json:"state"`
	Pincode   string  `json:"pincode"`
	Phone     *string `json:"phone"`
}

type checkoutContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type checkoutRequest struct {
	ShippingAddress *checkoutAddressRequest `json:"shipping_address"`
	BillingAddress  *checkoutAddressRequest `json:"billing_address"`
	Contact         *checkoutContactRequest `json:"contact"`
	PaymentMethod   string                  `json:"payment_method"`
	Notes           string                  `json:"notes"`
}

// CheckoutHandlers turns the caller's cart into an order.
type CheckoutHandlers struct {
	authn     *auth.Authenticator
	carts     cartReader
	orders    services.OrderService
	limiter   RateLimiter
	sanitizer *bluemonday.Policy
}

// CheckoutHandlerOption customises checkout handler behaviour.
type CheckoutHandlerOption func(*CheckoutHandlers)

// WithCheckoutRateLimiter bounds order creation per caller.
func WithCheckoutRateLimiter(limiter RateLimiter) CheckoutHandlerOption {
	return func(h *CheckoutHandlers) {
		h.limiter = limiter
	}
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(authn *auth.Authenticator, carts cartReader, orders services.OrderService, opts ...CheckoutHandlerOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:     authn,
		carts:     carts,
		orders:    orders,
		sanitizer: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
}

func (h *CheckoutHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil || h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	if req.ShippingAddress == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shipping_address is required", http.StatusBadRequest))
		return
	}
	if req.Contact == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "contact is required", http.StatusBadRequest))
		return
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
	if !method.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment_method must be upi or cod", http.StatusBadRequest))
		return
	}

	principal := principalFromIdentity(identity)

	cart, err := h.carts.GetCart(ctx, principal.UserID)
	if err != nil {
		// A missing cart document is how a cleared or never-used cart reads.
		// It checks out as empty; only infrastructure failures surface as 503.
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			cart = domain.Cart{UserID: principal.UserID}
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "failed to load cart", http.StatusServiceUnavailable))
			return
		}
	}

	order, err := h.orders.CreateFromCart(ctx, services.CreateOrderFromCartCommand{
		Principal:       principal,
		Cart:            cart,
		ShippingAddress: addressFromRequest(req.ShippingAddress),
		BillingAddress:  optionalAddressFromRequest(req.BillingAddress),
		Contact: services.OrderContact{
			Name:  strings.TrimSpace(req.Contact.Name),
			Email: strings.TrimSpace(req.Contact.Email),
			Phone: strings.TrimSpace(req.Contact.Phone),
		},
		PaymentMethod: method,
		Notes:         h.sanitizeNotes(req.Notes),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) sanitizeNotes(notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" || h.sanitizer == nil {
		return notes
	}
	return strings.TrimSpace(h.sanitizer.Sanitize(notes))
}

func addressFromRequest(req *checkoutAddressRequest) services.Address {
	if req == nil {
		return services.Address{}
	}
	return services.Address{
		Recipient: strings.TrimSpace(req.Recipient),
		Line1:     strings.TrimSpace(req.Line1),
		Line2:     trimOptional(req.Line2),
		City:      strings.TrimSpace(req.City),
		State:     trimOptional(req.State),
		Pincode:   strings.TrimSpace(req.Pincode),
		Phone:     trimOptional(req.Phone),
	}
}

func optionalAddressFromRequest(req *checkoutAddressRequest) *services.Address {
	if req == nil {
		return nil
	}
	addr := addressFromRequest(req)
	return &addr
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
