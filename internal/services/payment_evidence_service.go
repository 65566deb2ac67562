package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/blockbazaar/api/internal/domain"
	"github.com/blockbazaar/api/internal/repositories"
)

var (
	// ErrEvidenceMissingTransactionID indicates the transfer reference was absent.
	ErrEvidenceMissingTransactionID = errors.New("payment evidence: transaction id is required")
	// ErrEvidenceMissingScreenshot indicates the screenshot file was absent.
	ErrEvidenceMissingScreenshot = errors.New("payment evidence: screenshot is required")
	// ErrEvidenceNotApplicable indicates the order is not a prepaid transfer.
	ErrEvidenceNotApplicable = errors.New("payment evidence: order is not a prepaid transfer")
)

// PaymentEvidenceServiceDeps bundles collaborators for the evidence service.
type PaymentEvidenceServiceDeps struct {
	Orders      repositories.OrderRepository
	History     repositories.OrderStatusHistoryRepository
	Uploader    EvidenceUploader
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentEvidenceService struct {
	orders   repositories.OrderRepository
	history  repositories.OrderStatusHistoryRepository
	uploader EvidenceUploader
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentEvidenceService wires dependencies into a PaymentEvidenceService.
func NewPaymentEvidenceService(deps PaymentEvidenceServiceDeps) (PaymentEvidenceService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment evidence service: order repository is required")
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

	return &paymentEvidenceService{
		orders:   deps.Orders,
		history:  deps.History,
		uploader: deps.Uploader,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// Submit validates and records proof of transfer. Both inputs are mandatory
// and are checked before any write; a failed screenshot upload is tolerated
// and the evidence is stored without a URL so the customer need not re-pay.
func (s *paymentEvidenceService) Submit(ctx context.Context, cmd SubmitPaymentEvidenceCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	transactionID := strings.TrimSpace(cmd.TransactionID)
	if transactionID == "" {
		return Order{}, ErrEvidenceMissingTransactionID
	}
	if cmd.Screenshot == nil || cmd.Screenshot.Body == nil {
		return Order{}, ErrEvidenceMissingScreenshot
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !cmd.Principal.IsOperator() {
		userID := strings.TrimSpace(cmd.Principal.UserID)
		if userID == "" || order.UserID != userID {
			return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
		}
	}

	if order.PaymentMethod != domain.PaymentMethodUPI {
		return Order{}, fmt.Errorf("%w: payment method %q", ErrEvidenceNotApplicable, order.PaymentMethod)
	}

	now := s.clock()

	screenshotURL := ""
	if s.uploader != nil {
		upload := *cmd.Screenshot
		upload.OrderID = order.ID
		url, uploadErr := s.uploader.UploadEvidence(ctx, upload)
		if uploadErr != nil {
			s.logger(ctx, "payment.evidence.upload.failed", map[string]any{
				"order": order.ID,
				"file":  upload.FileName,
				"error": uploadErr.Error(),
			})
		} else {
			screenshotURL = url
		}
	}

	prev := order.Status
	order.Evidence = &domain.PaymentEvidence{
		TransactionID: transactionID,
		ScreenshotURL: screenshotURL,
		SubmittedAt:   now,
	}
	order.Notes = domain.AppendEvidenceNote(order.Notes, transactionID, screenshotURL)
	// Evidence re-issues the review state; it never confirms the payment on
	// its own. An operator does that after checking the transfer.
	order.PaymentStatus = domain.DerivePaymentStatus(order.PaymentMethod, order.PaymentStatus, prev, domain.OrderStatusPendingPaymentVerification)
	order.Status = domain.OrderStatusPendingPaymentVerification
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.appendHistory(ctx, domain.OrderStatusHistoryEntry{
		OrderID:    order.ID,
		FromStatus: prev,
		ToStatus:   order.Status,
		Note:       "payment evidence submitted",
		ActorRef:   optionalString(strings.TrimSpace(cmd.Principal.UserID)),
		CreatedAt:  now,
	})

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventEvidenceSubmitted,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		ActorID:        cmd.Principal.UserID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"transactionId":      transactionID,
			"screenshotUploaded": screenshotURL != "",
		},
	})

	return order, nil
}

func (s *paymentEvidenceService) appendHistory(ctx context.Context, entry domain.OrderStatusHistoryEntry) {
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

func (s *paymentEvidenceService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *paymentEvidenceService) mapRepositoryError(err error) error {
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
			return fmt.Errorf("payment evidence: repository unavailable: %w", err)
		}
	}
	return err
}
