package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blockbazaar/api/internal/platform/auth"
	"github.com/blockbazaar/api/internal/platform/httpx"
	"github.com/blockbazaar/api/internal/services"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = 64 * 1024
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be RFC3339 timestamp")
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func principalFromIdentity(identity *auth.Identity) services.Principal {
	if identity == nil {
		return services.Principal{}
	}
	return services.Principal{
		UserID: strings.TrimSpace(identity.UID),
		Roles:  identity.Roles,
	}
}

// requireIdentity resolves the authenticated identity or writes a 401 and
// reports false.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items to order", http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "not allowed to act on this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrEvidenceMissingTransactionID):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transaction_id is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrEvidenceMissingScreenshot):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "screenshot is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrEvidenceNotApplicable):
		httpx.WriteError(ctx, w, httpx.NewError("evidence_not_applicable", "order does not accept payment evidence", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

type addressPayload struct {
	Recipient string  `json:"recipient"`
	Line1     string  `json:"line1"`
	Line2     *string `json:"line2,omitempty"`
	City      string  `json:"city"`
	State     *string `json:"state,omitempty"`
	Pincode   string  `json:"pincode"`
	Phone     *string `json:"phone,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		Recipient: addr.Recipient,
		Line1:     addr.Line1,
		Line2:     cloneStringPointer(addr.Line2),
		City:      addr.City,
		State:     cloneStringPointer(addr.State),
		Pincode:   addr.Pincode,
		Phone:     cloneStringPointer(addr.Phone),
	}
}

type orderContactPayload struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type orderItemPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}

type evidencePayload struct {
	TransactionID string `json:"transaction_id"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
	SubmittedAt   string `json:"submitted_at,omitempty"`
}

type orderPayload struct {
	ID              string               `json:"id"`
	OrderNumber     string               `json:"order_number"`
	UserID          string               `json:"user_id"`
	Status          string               `json:"status"`
	PaymentMethod   string               `json:"payment_method"`
	PaymentStatus   string               `json:"payment_status"`
	Currency        string               `json:"currency"`
	TotalAmount     int64                `json:"total_amount"`
	Items           []orderItemPayload   `json:"items"`
	ShippingAddress *addressPayload      `json:"shipping_address,omitempty"`
	BillingAddress  *addressPayload      `json:"billing_address,omitempty"`
	Contact         *orderContactPayload `json:"contact,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	Evidence        *evidencePayload     `json:"payment_evidence,omitempty"`
	CancelReason    *string              `json:"cancel_reason,omitempty"`
	CancelledAt     string               `json:"cancelled_at,omitempty"`
	DeliveredAt     string               `json:"delivered_at,omitempty"`
	CreatedAt       string               `json:"created_at"`
	UpdatedAt       string               `json:"updated_at,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            strings.TrimSpace(order.ID),
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		UserID:        strings.TrimSpace(order.UserID),
		Status:        strings.TrimSpace(string(order.Status)),
		PaymentMethod: strings.TrimSpace(string(order.PaymentMethod)),
		PaymentStatus: strings.TrimSpace(string(order.PaymentStatus)),
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		TotalAmount:   order.TotalAmount,
		Items:         make([]orderItemPayload, 0, len(order.Items)),
		Notes:         order.Notes,
		CancelReason:  cloneStringPointer(order.CancelReason),
		CancelledAt:   formatTime(pointerTime(order.CancelledAt)),
		DeliveredAt:   formatTime(pointerTime(order.DeliveredAt)),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:        strings.TrimSpace(item.ID),
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      item.Name,
			SKU:       item.SKU,
			ImageURL:  item.ImageURL,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	if order.ShippingAddress != nil {
		addr := buildAddressPayload(*order.ShippingAddress)
		payload.ShippingAddress = &addr
	}
	if order.BillingAddress != nil {
		addr := buildAddressPayload(*order.BillingAddress)
		payload.BillingAddress = &addr
	}
	if order.Contact != nil {
		payload.Contact = &orderContactPayload{
			Name:  strings.TrimSpace(order.Contact.Name),
			Email: strings.TrimSpace(order.Contact.Email),
			Phone: strings.TrimSpace(order.Contact.Phone),
		}
	}
	if order.Evidence != nil {
		payload.Evidence = &evidencePayload{
			TransactionID: order.Evidence.TransactionID,
			ScreenshotURL: order.Evidence.ScreenshotURL,
			SubmittedAt:   formatTime(order.Evidence.SubmittedAt),
		}
	}
	return payload
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	TotalAmount   int64  `json:"total_amount"`
	Currency      string `json:"currency"`
	ItemCount     int    `json:"item_count"`
	CreatedAt     string `json:"created_at"`
}

func buildOrderSummaryPayload(summary services.OrderSummary) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            strings.TrimSpace(summary.ID),
		OrderNumber:   strings.TrimSpace(summary.OrderNumber),
		Status:        strings.TrimSpace(string(summary.Status)),
		PaymentMethod: strings.TrimSpace(string(summary.PaymentMethod)),
		PaymentStatus: strings.TrimSpace(string(summary.PaymentStatus)),
		TotalAmount:   summary.TotalAmount,
		Currency:      strings.ToUpper(strings.TrimSpace(summary.Currency)),
		ItemCount:     summary.ItemCount,
		CreatedAt:     formatTime(summary.CreatedAt),
	}
}

type statusHistoryPayload struct {
	ID         string  `json:"id"`
	FromStatus string  `json:"from_status"`
	ToStatus   string  `json:"to_status"`
	Note       string  `json:"note,omitempty"`
	ActorRef   *string `json:"actor_ref,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func buildStatusHistoryPayload(entry services.OrderStatusHistoryEntry) statusHistoryPayload {
	return statusHistoryPayload{
		ID:         strings.TrimSpace(entry.ID),
		FromStatus: strings.TrimSpace(string(entry.FromStatus)),
		ToStatus:   strings.TrimSpace(string(entry.ToStatus)),
		Note:       entry.Note,
		ActorRef:   cloneStringPointer(entry.ActorRef),
		CreatedAt:  formatTime(entry.CreatedAt),
	}
}

func parseOrderStatus(raw string) (services.OrderStatus, bool) {
	status := services.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", false
	}
	return status, true
}

func parseStatusFilters(values []string) ([]services.OrderStatus, error) {
	raw := parseFilterValues(values)
	if len(raw) == 0 {
		return nil, nil
	}
	statuses := make([]services.OrderStatus, 0, len(raw))
	for _, value := range raw {
		status, ok := parseOrderStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
