package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/blockbazaar/api/internal/domain"
	pfirestore "github.com/blockbazaar/api/internal/platform/firestore"
	"github.com/blockbazaar/api/internal/repositories"
)

const orderHistoryCollection = "history"

// OrderStatusHistoryRepository stores the append-only transition log beneath
// each order document.
type OrderStatusHistoryRepository struct {
	provider *pfirestore.Provider
}

// NewOrderStatusHistoryRepository constructs a Firestore-backed history repository.
func NewOrderStatusHistoryRepository(provider *pfirestore.Provider) (*OrderStatusHistoryRepository, error) {
	if provider == nil {
		return nil, errors.New("order history repository requires firestore provider")
	}
	return &OrderStatusHistoryRepository{provider: provider}, nil
}

// Append stores a transition row under the given order.
func (r *OrderStatusHistoryRepository) Append(ctx context.Context, entry domain.OrderStatusHistoryEntry) error {
	if r == nil || r.provider == nil {
		return errors.New("order history repository not initialised")
	}
	orderID := strings.TrimSpace(entry.OrderID)
	if orderID == "" {
		return errors.New("order history repository: order id is required")
	}
	entryID := strings.TrimSpace(entry.ID)
	if entryID == "" {
		return errors.New("order history repository: entry id is required")
	}

	coll, err := r.collection(ctx, orderID)
	if err != nil {
		return err
	}

	doc := orderHistoryDocument{
		FromStatus: string(entry.FromStatus),
		ToStatus:   string(entry.ToStatus),
		Note:       strings.TrimSpace(entry.Note),
		CreatedAt:  entry.CreatedAt.UTC(),
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if entry.ActorRef != nil {
		doc.ActorRef = strings.TrimSpace(*entry.ActorRef)
	}

	if _, err := coll.Doc(entryID).Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.history.append", err)
	}
	return nil
}

// List returns transition rows for an order, newest first.
func (r *OrderStatusHistoryRepository) List(ctx context.Context, orderID string, pager domain.Pagination) (domain.CursorPage[domain.OrderStatusHistoryEntry], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.OrderStatusHistoryEntry]{}, errors.New("order history repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.CursorPage[domain.OrderStatusHistoryEntry]{}, errors.New("order history repository: order id is required")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.OrderStatusHistoryEntry]{}, fmt.Errorf("order history repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	coll, err := r.collection(ctx, orderID)
	if err != nil {
		return domain.CursorPage[domain.OrderStatusHistoryEntry]{}, err
	}

	query := coll.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if len(startAfter) == 2 {
		query = query.StartAfter(startAfter...)
	}
	if fetchLimit > 0 {
		query = query.Limit(fetchLimit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	type fetched struct {
		id        string
		doc       orderHistoryDocument
		createdAt time.Time
	}
	var rows []fetched
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.OrderStatusHistoryEntry]{}, pfirestore.WrapError("orders.history.list", err)
		}
		var doc orderHistoryDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.OrderStatusHistoryEntry]{}, fmt.Errorf("order history repository: decode entry %s: %w", snap.Ref.ID, err)
		}
		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = snap.CreateTime
		}
		rows = append(rows, fetched{id: snap.Ref.ID, doc: doc, createdAt: createdAt})
	}

	nextToken := ""
	if limit > 0 && len(rows) == fetchLimit {
		last := rows[len(rows)-1]
		nextToken = encodeOrderListToken(last.createdAt, last.id)
		rows = rows[:len(rows)-1]
	}

	items := make([]domain.OrderStatusHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry := domain.OrderStatusHistoryEntry{
			ID:         row.id,
			OrderID:    orderID,
			FromStatus: domain.OrderStatus(row.doc.FromStatus),
			ToStatus:   domain.OrderStatus(row.doc.ToStatus),
			Note:       row.doc.Note,
			CreatedAt:  row.createdAt,
		}
		if row.doc.ActorRef != "" {
			actor := row.doc.ActorRef
			entry.ActorRef = &actor
		}
		items = append(items, entry)
	}

	return domain.CursorPage[domain.OrderStatusHistoryEntry]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func (r *OrderStatusHistoryRepository) collection(ctx context.Context, orderID string) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(orderCollection).Doc(orderID).Collection(orderHistoryCollection), nil
}

type orderHistoryDocument struct {
	FromStatus string    `firestore:"fromStatus"`
	ToStatus   string    `firestore:"toStatus"`
	Note       string    `firestore:"note,omitempty"`
	ActorRef   string    `firestore:"actorRef,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

var _ repositories.OrderStatusHistoryRepository = (*OrderStatusHistoryRepository)(nil)
