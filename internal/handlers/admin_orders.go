package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/blockbazaar/api/internal/domain"
	"github.com/blockbazaar/api/internal/platform/auth"
	"github.com/blockbazaar/api/internal/platform/httpx"
	"github.com/blockbazaar/api/internal/platform/pagination"
	"github.com/blockbazaar/api/internal/platform/storage"
	"github.com/blockbazaar/api/internal/services"
)

const (
	maxAdminStatusBodySize   = 8 * 1024
	evidenceDownloadValidity = 10 * time.Minute
)

type updateOrderStatusRequest struct {
	Status         string `json:"status"`
	Note           string `json:"note"`
	ExpectedStatus string `json:"expected_status"`
}

// AdminOrderHandlers exposes the verification and fulfilment surface for staff.
// Screenshot links are re-signed on read so the stored object stays private.
type AdminOrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	signer    *storage.Client
	bucket    string
	sanitizer *bluemonday.Policy
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance. The
// signer is optional; without it evidence responses carry the stored URL.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, signer *storage.Client, bucket string) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:     authn,
		orders:    orders,
		signer:    signer,
		bucket:    strings.TrimSpace(bucket),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Routes registers the /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Route("/orders", func(orders chi.Router) {
		orders.Get("/", h.listOrders)
		orders.Get("/{orderID}", h.getOrder)
		orders.Get("/{orderID}/payment-evidence", h.getEvidence)
		orders.Post("/{orderID}:update-status", h.updateStatus)
		orders.Post("/{orderID}:cancel", h.cancelOrder)
	})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()

	statuses, err := parseStatusFilters(query["status"])
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID: strings.TrimSpace(query.Get("user_id")),
		Status: statuses,
		Search: strings.TrimSpace(query.Get("q")),
	}

	if raw := strings.TrimSpace(query.Get("payment_method")); raw != "" {
		method := domain.PaymentMethod(strings.ToLower(raw))
		if !method.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment_method must be upi or cod", http.StatusBadRequest))
			return
		}
		filter.PaymentMethod = &method
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &ts
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Pagination = services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}

	page, err := h.orders.ListOrders(ctx, principalFromIdentity(identity), filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}

	writeJSONResponse(w, http.StatusOK, adminOrderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, principalFromIdentity(identity), orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) getEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, principalFromIdentity(identity), orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	evidence := domain.EvidenceFromOrder(order)
	if evidence == nil {
		httpx.WriteError(ctx, w, httpx.NewError("evidence_not_found", "no payment evidence recorded for this order", http.StatusNotFound))
		return
	}

	payload := adminEvidenceResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		Evidence: evidencePayload{
			TransactionID: evidence.TransactionID,
			ScreenshotURL: evidence.ScreenshotURL,
			SubmittedAt:   formatTime(evidence.SubmittedAt),
		},
	}

	if signed, expiresAt, ok := h.signScreenshotURL(r, identity, order, evidence.ScreenshotURL); ok {
		payload.Evidence.ScreenshotURL = signed
		payload.ScreenshotExpiresAt = formatTime(expiresAt)
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminStatusBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	target, ok := parseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	cmd := services.OrderStatusTransitionCommand{
		Principal:    principalFromIdentity(identity),
		OrderID:      orderID,
		TargetStatus: target,
		Note:         h.sanitize(req.Note),
	}
	if raw := strings.TrimSpace(req.ExpectedStatus); raw != "" {
		expected, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
			return
		}
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.UpdateStatus(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	cmd := services.CancelOrderCommand{
		Principal: principalFromIdentity(identity),
		OrderID:   orderID,
		Reason:    h.sanitize(req.Reason),
	}
	if raw := strings.TrimSpace(req.ExpectedStatus); raw != "" {
		expected, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
			return
		}
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.Cancel(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// signScreenshotURL exchanges the stored object URL for a short-lived signed
// download link. It reports false when no signer is configured or the URL does
// not point at the evidence bucket.
func (h *AdminOrderHandlers) signScreenshotURL(r *http.Request, identity *auth.Identity, order services.Order, rawURL string) (string, time.Time, bool) {
	if h.signer == nil || h.bucket == "" || strings.TrimSpace(rawURL) == "" {
		return "", time.Time{}, false
	}

	prefix := "https://storage.googleapis.com/" + h.bucket + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", time.Time{}, false
	}
	object := strings.TrimPrefix(rawURL, prefix)
	if object == "" {
		return "", time.Time{}, false
	}

	result, err := h.signer.SignedURL(r.Context(), h.bucket, object, storage.SignedURLOptions{
		Download: &storage.DownloadOptions{
			ExpiresIn:   evidenceDownloadValidity,
			Disposition: "inline",
			OwnerID:     order.UserID,
			Identity:    identity,
		},
	})
	if err != nil {
		return "", time.Time{}, false
	}
	return result.URL, result.ExpiresAt, true
}

func (h *AdminOrderHandlers) sanitize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || h.sanitizer == nil {
		return value
	}
	return strings.TrimSpace(h.sanitizer.Sanitize(value))
}

type adminOrderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type adminEvidenceResponse struct {
	OrderID             string          `json:"order_id"`
	OrderNumber         string          `json:"order_number"`
	PaymentMethod       string          `json:"payment_method"`
	PaymentStatus       string          `json:"payment_status"`
	Evidence            evidencePayload `json:"evidence"`
	ScreenshotExpiresAt string          `json:"screenshot_expires_at,omitempty"`
}
