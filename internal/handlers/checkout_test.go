package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/blockbazaar/api/internal/domain"
	"github.com/blockbazaar/api/internal/services"
)

type stubCartReader struct {
	getCart func(ctx context.Context, userID string) (domain.Cart, error)
}

func (s *stubCartReader) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getCart == nil {
		return domain.Cart{}, errors.New("getCart not stubbed")
	}
	return s.getCart(ctx, userID)
}

type stubCartLoadError struct {
	notFound bool
}

func (e *stubCartLoadError) Error() string       { return "cart load failed" }
func (e *stubCartLoadError) IsNotFound() bool    { return e.notFound }
func (e *stubCartLoadError) IsConflict() bool    { return false }
func (e *stubCartLoadError) IsUnavailable() bool { return !e.notFound }

func newCheckoutTestRouter(h *CheckoutHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/checkout", h.Routes)
	return r
}

func checkoutBody(t *testing.T, overrides map[string]any) *bytes.Buffer {
	t.Helper()
	payload := map[string]any{
		"shipping_address": map[string]any{
			"recipient": "Asha Nair",
			"line1":     "14 MG Road",
			"city":      "Bengaluru",
			"pincode":   "560001",
		},
		"contact": map[string]any{
			"name":  "Asha Nair",
			"email": "asha@example.com",
			"phone": "+919876543210",
		},
		"payment_method": "upi",
	}
	for key, value := range overrides {
		payload[key] = value
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal checkout body: %v", err)
	}
	return bytes.NewBuffer(data)
}

func TestCheckoutHandlersCreateOrder(t *testing.T) {
	cartUpdated := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	cart := domain.Cart{
		ID:       "cart_1",
		UserID:   "user-1",
		Currency: "INR",
		Items: []domain.CartItem{{
			ID:        "item_1",
			ProductID: "prod_1",
			Name:      "Creeper Hoodie",
			Quantity:  1,
			UnitPrice: 149900,
		}},
		UpdatedAt: cartUpdated,
	}

	carts := &stubCartReader{
		getCart: func(_ context.Context, userID string) (domain.Cart, error) {
			if userID != "user-1" {
				t.Fatalf("expected cart lookup for user-1, got %q", userID)
			}
			return cart, nil
		},
	}

	var gotCmd services.CreateOrderFromCartCommand
	orders := &stubOrderService{
		createFromCart: func(_ context.Context, cmd services.CreateOrderFromCartCommand) (services.Order, error) {
			gotCmd = cmd
			return services.Order{
				ID:            "ord_1",
				OrderNumber:   "BB-20260310-1042",
				UserID:        cmd.Principal.UserID,
				Status:        domain.OrderStatusPendingPaymentVerification,
				PaymentMethod: cmd.PaymentMethod,
				PaymentStatus: domain.PaymentStatusPending,
				Currency:      "INR",
				TotalAmount:   149900,
			}, nil
		},
	}

	h := NewCheckoutHandlers(nil, carts, orders)
	router := newCheckoutTestRouter(h)

	req := authenticatedRequest(t, http.MethodPost, "/checkout/", checkoutBody(t, map[string]any{
		"notes": "<script>alert(1)</script>leave at the gate",
	}), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.Cart.ID != "cart_1" || len(gotCmd.Cart.Items) != 1 {
		t.Fatalf("expected loaded cart in command, got %+v", gotCmd.Cart)
	}
	if gotCmd.PaymentMethod != domain.PaymentMethodUPI {
		t.Fatalf("expected upi payment method, got %q", gotCmd.PaymentMethod)
	}
	if gotCmd.ShippingAddress.Pincode != "560001" {
		t.Fatalf("expected pincode 560001, got %q", gotCmd.ShippingAddress.Pincode)
	}
	if gotCmd.BillingAddress != nil {
		t.Fatalf("expected no billing address when omitted, got %+v", gotCmd.BillingAddress)
	}
	if strings.Contains(gotCmd.Notes, "script") {
		t.Fatalf("expected sanitised notes, got %q", gotCmd.Notes)
	}
	if !strings.Contains(gotCmd.Notes, "leave at the gate") {
		t.Fatalf("expected note text preserved, got %q", gotCmd.Notes)
	}

	var body struct {
		Order struct {
			OrderNumber string `json:"order_number"`
			Status      string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Order.OrderNumber != "BB-20260310-1042" {
		t.Fatalf("unexpected order number %q", body.Order.OrderNumber)
	}
	if body.Order.Status != string(domain.OrderStatusPendingPaymentVerification) {
		t.Fatalf("unexpected status %q", body.Order.Status)
	}
}

func TestCheckoutHandlersCapturesBillingAddress(t *testing.T) {
	carts := &stubCartReader{
		getCart: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: "cart_1", UserID: userID, Items: []domain.CartItem{{ID: "item_1", ProductID: "prod_1", Quantity: 1, UnitPrice: 49900}}}, nil
		},
	}

	var gotCmd services.CreateOrderFromCartCommand
	orders := &stubOrderService{
		createFromCart: func(_ context.Context, cmd services.CreateOrderFromCartCommand) (services.Order, error) {
			gotCmd = cmd
			billing := cmd.BillingAddress
			return services.Order{
				ID:              "ord_1",
				UserID:          cmd.Principal.UserID,
				Status:          domain.OrderStatusConfirmed,
				ShippingAddress: &cmd.ShippingAddress,
				BillingAddress:  billing,
			}, nil
		},
	}

	h := NewCheckoutHandlers(nil, carts, orders)
	router := newCheckoutTestRouter(h)

	req := authenticatedRequest(t, http.MethodPost, "/checkout/", checkoutBody(t, map[string]any{
		"payment_method": "cod",
		"billing_address": map[string]any{
			"recipient": "Nair Exports Pvt Ltd",
			"line1":     "2nd Floor, Trade Centre",
			"city":      "Kochi",
			"pincode":   "682001",
		},
	}), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.BillingAddress == nil {
		t.Fatal("expected billing address in command")
	}
	if gotCmd.BillingAddress.Pincode != "682001" || gotCmd.BillingAddress.Recipient != "Nair Exports Pvt Ltd" {
		t.Fatalf("unexpected billing address %+v", gotCmd.BillingAddress)
	}

	var body struct {
		Order struct {
			BillingAddress *struct {
				Pincode string `json:"pincode"`
			} `json:"billing_address"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Order.BillingAddress == nil || body.Order.BillingAddress.Pincode != "682001" {
		t.Fatalf("expected billing address in response, got %s", rr.Body.String())
	}
}

func TestCheckoutHandlersMissingCartChecksOutEmpty(t *testing.T) {
	carts := &stubCartReader{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{}, &stubCartLoadError{notFound: true}
		},
	}

	var gotCart domain.Cart
	orders := &stubOrderService{
		createFromCart: func(_ context.Context, cmd services.CreateOrderFromCartCommand) (services.Order, error) {
			gotCart = cmd.Cart
			return services.Order{}, services.ErrOrderEmptyCart
		},
	}

	h := NewCheckoutHandlers(nil, carts, orders)
	router := newCheckoutTestRouter(h)

	req := authenticatedRequest(t, http.MethodPost, "/checkout/", checkoutBody(t, nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "cart_empty") {
		t.Fatalf("expected cart_empty code, got %s", rr.Body.String())
	}
	if gotCart.UserID != "user-1" || len(gotCart.Items) != 0 {
		t.Fatalf("expected empty cart for user-1 in command, got %+v", gotCart)
	}
}

func TestCheckoutHandlersCartLoadFailure(t *testing.T) {
	carts := &stubCartReader{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{}, &stubCartLoadError{}
		},
	}
	orders := &stubOrderService{
		createFromCart: func(context.Context, services.CreateOrderFromCartCommand) (services.Order, error) {
			t.Fatal("order creation must not run when the cart load fails")
			return services.Order{}, nil
		},
	}

	h := NewCheckoutHandlers(nil, carts, orders)
	router := newCheckoutTestRouter(h)

	req := authenticatedRequest(t, http.MethodPost, "/checkout/", checkoutBody(t, nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "cart_unavailable") {
		t.Fatalf("expected cart_unavailable code, got %s", rr.Body.String())
	}
}

func TestCheckoutHandlersEmptyCart(t *testing.T) {
	carts := &stubCartReader{
		getCart: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: "cart_1", UserID: userID}, nil
		},
	}
	orders := &stubOrderService{
		createFromCart: func(context.Context, services.CreateOrderFromCartCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderEmptyCart
		},
	}

	h := NewCheckoutHandlers(nil, carts, orders)
	router := newCheckoutTestRouter(h)

	req := authenticatedRequest(t, http.MethodPost, "/checkout/", checkoutBody(t, nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "cart_empty") {
		t.Fatalf("expected cart_empty code, got %s", rr.Body.String())
	}
}

func TestCheckoutHandlersRejectsUnknownPaymentMethod(t *testing.T) {
	h := NewCheckoutHandlers(nil, &stubCartReader{}, &stubOrderService{})
	router := newCheckoutTestRouter(h)

	req := authenticatedRequest(t, http.MethodPost, "/checkout/", checkoutBody(t, map[string]any{
		"payment_method": "cheque",
	}), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCheckoutHandlersRequiresShippingAddress(t *testing.T) {
	h := NewCheckoutHandlers(nil, &stubCartReader{}, &stubOrderService{})
	router := newCheckoutTestRouter(h)

	body := bytes.NewBufferString(`{"contact":{"name":"Asha"},"payment_method":"cod"}`)
	req := authenticatedRequest(t, http.MethodPost, "/checkout/", body, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "shipping_address") {
		t.Fatalf("expected shipping_address message, got %s", rr.Body.String())
	}
}

func TestCheckoutHandlersUnauthenticated(t *testing.T) {
	h := NewCheckoutHandlers(nil, &stubCartReader{}, &stubOrderService{})
	router := newCheckoutTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/checkout/", checkoutBody(t, nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
