package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/blockbazaar/api/internal/domain"
	pfirestore "github.com/blockbazaar/api/internal/platform/firestore"
	"github.com/blockbazaar/api/internal/platform/textutil"
	"github.com/blockbazaar/api/internal/repositories"
)

const (
	orderCollection      = "orders"
	orderItemsCollection = "items"
)

// OrderRepository persists order headers in Firestore with line items stored
// in a subcollection. Header and item writes are intentionally separate: the
// caller performs the compensating header delete when item writes fail.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// InsertHeader writes the order header document. The header starts with an
// item count of zero; InsertItems raises it once the line items are written,
// which is what lets the reconciliation sweep spot abandoned headers.
func (r *OrderRepository) InsertHeader(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	doc := encodeOrderDocument(order)
	doc.ItemsCount = 0

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// InsertItems writes the line item documents beneath the order and stamps the
// item count onto the header in the same pass.
func (r *OrderRepository) InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if len(items) == 0 {
		return errors.New("order repository: items are required")
	}

	coll, err := r.itemsCollection(ctx, orderID)
	if err != nil {
		return err
	}

	for _, item := range items {
		itemID := strings.TrimSpace(item.ID)
		if itemID == "" {
			return errors.New("order repository: item id is required")
		}
		if _, err := coll.Doc(itemID).Create(ctx, encodeOrderItemDocument(item)); err != nil {
			return pfirestore.WrapError("orders.items.insert", err)
		}
	}

	updates := []firestore.Update{{Path: "itemsCount", Value: len(items)}}
	if _, err := r.base.Update(ctx, orderID, updates); err != nil {
		return err
	}
	return nil
}

// DeleteHeader removes the order header and any line items already written.
// It is the compensating action for a failed item insert.
func (r *OrderRepository) DeleteHeader(ctx context.Context, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	coll, err := r.itemsCollection(ctx, orderID)
	if err != nil {
		return err
	}
	iter := coll.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return pfirestore.WrapError("orders.items.delete", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return pfirestore.WrapError("orders.items.delete", err)
		}
	}

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

// Update replaces the order header document. Line items are immutable after
// creation and are never touched here.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	doc := encodeOrderDocument(order)
	doc.ItemsCount = len(order.Items)
	if doc.ItemsCount == 0 {
		// Items were not loaded on this projection; keep the persisted count
		// so the header does not start looking like an orphan.
		doc.ItemsCount = order.ItemsCount
	}
	if _, err := r.base.Set(ctx, orderID, doc); err != nil {
		return err
	}
	return nil
}

// FindByID loads the order header together with its line items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	order := decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)

	items, err := r.listItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// ExistsByNumber probes whether any order already carries the given number.
func (r *OrderRepository) ExistsByNumber(ctx context.Context, orderNumber string) (bool, error) {
	if r == nil || r.base == nil {
		return false, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return false, errors.New("order repository: order number is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// List returns order headers matching the filter, newest first. Free-text
// search matches the order number prefix or the customer name and is applied
// to the fetched page; search results do not paginate further.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		value := strings.TrimSpace(string(s))
		if value != "" {
			statusFilters = append(statusFilters, value)
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}
		if filter.PaymentMethod != nil {
			q = q.Where("paymentMethod", "==", string(*filter.PaymentMethod))
		}
		if filter.DateRange.From != nil && !filter.DateRange.From.IsZero() {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil && !filter.DateRange.To.IsZero() {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeOrderListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	search := textutil.Fold(filter.Search)
	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		order := decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)
		if search != "" && !orderMatchesSearch(order, search) {
			continue
		}
		items = append(items, order)
	}
	if search != "" {
		nextToken = ""
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// ListOrphanHeaders returns headers older than the cutoff whose item writes
// never completed.
func (r *OrderRepository) ListOrphanHeaders(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	if olderThan.IsZero() {
		return nil, errors.New("order repository: cutoff is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("itemsCount", "==", 0).Where("createdAt", "<", olderThan.UTC())
		q = q.OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return orders, nil
}

func (r *OrderRepository) listItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	coll, err := r.itemsCollection(ctx, orderID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var items []domain.OrderItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.items.list", err)
		}
		var doc orderItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("order repository: decode item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, decodeOrderItemDocument(orderID, snap.Ref.ID, doc))
	}
	return items, nil
}

func (r *OrderRepository) itemsCollection(ctx context.Context, orderID string) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(orderCollection).Doc(orderID).Collection(orderItemsCollection), nil
}

func orderMatchesSearch(order domain.Order, search string) bool {
	if strings.HasPrefix(textutil.Fold(order.OrderNumber), search) {
		return true
	}
	if order.Contact != nil && strings.Contains(textutil.Fold(order.Contact.Name), search) {
		return true
	}
	return false
}

func encodeOrderListToken(createdAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeOrderListToken(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("malformed token")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	docID := strings.TrimSpace(parts[1])
	if docID == "" {
		return time.Time{}, "", errors.New("malformed token")
	}
	return ts, docID, nil
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		UserID:        strings.TrimSpace(order.UserID),
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		TotalAmount:   order.TotalAmount,
		Notes:         order.Notes,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}

	doc.ShippingAddress = encodeOrderAddress(order.ShippingAddress)
	doc.BillingAddress = encodeOrderAddress(order.BillingAddress)
	if order.Contact != nil {
		doc.Contact = &orderContactDocument{
			Name:  order.Contact.Name,
			Email: order.Contact.Email,
			Phone: order.Contact.Phone,
		}
	}
	if order.Evidence != nil {
		doc.Evidence = &orderEvidenceDocument{
			TransactionID: order.Evidence.TransactionID,
			ScreenshotURL: order.Evidence.ScreenshotURL,
			SubmittedAt:   order.Evidence.SubmittedAt.UTC(),
		}
	}
	if order.CancelReason != nil {
		doc.CancelReason = strings.TrimSpace(*order.CancelReason)
	}
	if order.CancelledAt != nil {
		ts := order.CancelledAt.UTC()
		doc.CancelledAt = &ts
	}
	if order.DeliveredAt != nil {
		ts := order.DeliveredAt.UTC()
		doc.DeliveredAt = &ts
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument, createTime, updateTime time.Time) domain.Order {
	order := domain.Order{
		ID:            id,
		OrderNumber:   doc.OrderNumber,
		UserID:        doc.UserID,
		Status:        domain.OrderStatus(doc.Status),
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		PaymentStatus: domain.PaymentStatus(doc.PaymentStatus),
		Currency:      doc.Currency,
		TotalAmount:   doc.TotalAmount,
		ItemsCount:    doc.ItemsCount,
		Notes:         doc.Notes,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = createTime
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = updateTime
	}

	order.ShippingAddress = decodeOrderAddress(doc.ShippingAddress)
	order.BillingAddress = decodeOrderAddress(doc.BillingAddress)
	if doc.Contact != nil {
		order.Contact = &domain.OrderContact{
			Name:  doc.Contact.Name,
			Email: doc.Contact.Email,
			Phone: doc.Contact.Phone,
		}
	}
	if doc.Evidence != nil {
		order.Evidence = &domain.PaymentEvidence{
			TransactionID: doc.Evidence.TransactionID,
			ScreenshotURL: doc.Evidence.ScreenshotURL,
			SubmittedAt:   doc.Evidence.SubmittedAt,
		}
	}
	if doc.CancelReason != "" {
		reason := doc.CancelReason
		order.CancelReason = &reason
	}
	order.CancelledAt = doc.CancelledAt
	order.DeliveredAt = doc.DeliveredAt
	return order
}

func encodeOrderAddress(addr *domain.Address) *orderAddressDocument {
	if addr == nil {
		return nil
	}
	return &orderAddressDocument{
		Recipient: addr.Recipient,
		Line1:     addr.Line1,
		Line2:     valueOrEmpty(addr.Line2),
		City:      addr.City,
		State:     valueOrEmpty(addr.State),
		Pincode:   addr.Pincode,
		Phone:     valueOrEmpty(addr.Phone),
	}
}

func decodeOrderAddress(doc *orderAddressDocument) *domain.Address {
	if doc == nil {
		return nil
	}
	return &domain.Address{
		Recipient: doc.Recipient,
		Line1:     doc.Line1,
		Line2:     optionalString(doc.Line2),
		City:      doc.City,
		State:     optionalString(doc.State),
		Pincode:   doc.Pincode,
		Phone:     optionalString(doc.Phone),
	}
}

func encodeOrderItemDocument(item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
		ProductID: strings.TrimSpace(item.ProductID),
		Name:      item.Name,
		SKU:       item.SKU,
		ImageURL:  item.ImageURL,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		Total:     item.Total,
	}
}

func decodeOrderItemDocument(orderID, id string, doc orderItemDocument) domain.OrderItem {
	return domain.OrderItem{
		ID:        id,
		OrderID:   orderID,
		ProductID: doc.ProductID,
		Name:      doc.Name,
		SKU:       doc.SKU,
		ImageURL:  doc.ImageURL,
		Quantity:  doc.Quantity,
		UnitPrice: doc.UnitPrice,
		Total:     doc.Total,
	}
}

func valueOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

type orderDocument struct {
	OrderNumber     string                 `firestore:"orderNumber"`
	UserID          string                 `firestore:"userId"`
	Status          string                 `firestore:"status"`
	PaymentMethod   string                 `firestore:"paymentMethod"`
	PaymentStatus   string                 `firestore:"paymentStatus"`
	Currency        string                 `firestore:"currency"`
	TotalAmount     int64                  `firestore:"totalAmount"`
	ItemsCount      int                    `firestore:"itemsCount"`
	ShippingAddress *orderAddressDocument  `firestore:"shippingAddress,omitempty"`
	BillingAddress  *orderAddressDocument  `firestore:"billingAddress,omitempty"`
	Contact         *orderContactDocument  `firestore:"contact,omitempty"`
	Notes           string                 `firestore:"notes,omitempty"`
	Evidence        *orderEvidenceDocument `firestore:"paymentEvidence,omitempty"`
	CancelReason    string                 `firestore:"cancelReason,omitempty"`
	CancelledAt     *time.Time             `firestore:"cancelledAt,omitempty"`
	DeliveredAt     *time.Time             `firestore:"deliveredAt,omitempty"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
}

type orderAddressDocument struct {
	Recipient string `firestore:"recipient"`
	Line1     string `firestore:"line1"`
	Line2     string `firestore:"line2,omitempty"`
	City      string `firestore:"city"`
	State     string `firestore:"state,omitempty"`
	Pincode   string `firestore:"pincode"`
	Phone     string `firestore:"phone,omitempty"`
}

type orderContactDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email,omitempty"`
	Phone string `firestore:"phone,omitempty"`
}

type orderEvidenceDocument struct {
	TransactionID string    `firestore:"transactionId"`
	ScreenshotURL string    `firestore:"screenshotUrl,omitempty"`
	SubmittedAt   time.Time `firestore:"submittedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	SKU       string `firestore:"sku,omitempty"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
