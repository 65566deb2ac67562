package domain

import (
	"testing"
	"time"
)

func TestDerivePaymentStatus(t *testing.T) {
	tests := []struct {
		name    string
		method  PaymentMethod
		current PaymentStatus
		from    OrderStatus
		to      OrderStatus
		want    PaymentStatus
	}{
		{
			name:    "upi confirmed from review settles",
			method:  PaymentMethodUPI,
			current: PaymentStatusPending,
			from:    OrderStatusPendingPaymentVerification,
			to:      OrderStatusConfirmed,
			want:    PaymentStatusPaid,
		},
		{
			name:    "upi processing keeps pending",
			method:  PaymentMethodUPI,
			current: PaymentStatusPending,
			from:    OrderStatusPendingPaymentVerification,
			to:      OrderStatusProcessing,
			want:    PaymentStatusPending,
		},
		{
			name:    "upi shipped keeps paid",
			method:  PaymentMethodUPI,
			current: PaymentStatusPaid,
			from:    OrderStatusConfirmed,
			to:      OrderStatusShipped,
			want:    PaymentStatusPaid,
		},
		{
			name:    "cod delivered settles",
			method:  PaymentMethodCOD,
			current: PaymentStatusPending,
			from:    OrderStatusShipped,
			to:      OrderStatusDelivered,
			want:    PaymentStatusPaid,
		},
		{
			name:    "cod confirmed keeps pending",
			method:  PaymentMethodCOD,
			current: PaymentStatusPending,
			from:    OrderStatusConfirmed,
			to:      OrderStatusProcessing,
			want:    PaymentStatusPending,
		},
		{
			name:    "cod shipped keeps pending",
			method:  PaymentMethodCOD,
			current: PaymentStatusPending,
			from:    OrderStatusProcessing,
			to:      OrderStatusShipped,
			want:    PaymentStatusPending,
		},
		{
			name:    "cancel keeps pending",
			method:  PaymentMethodUPI,
			current: PaymentStatusPending,
			from:    OrderStatusPendingPaymentVerification,
			to:      OrderStatusCancelled,
			want:    PaymentStatusPending,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DerivePaymentStatus(tc.method, tc.current, tc.from, tc.to)
			if got != tc.want {
				t.Fatalf("DerivePaymentStatus(%s, %s, %s->%s) = %s, want %s",
					tc.method, tc.current, tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestOrderStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{
		OrderStatusPendingPaymentVerification,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusReturned,
		OrderStatusCancelled,
	} {
		if !s.Valid() {
			t.Fatalf("status %q should be valid", s)
		}
	}
	if OrderStatus("paid").Valid() {
		t.Fatal("unknown status accepted")
	}
	if OrderStatus("").Valid() {
		t.Fatal("empty status accepted")
	}
}

func TestPaymentMethodValid(t *testing.T) {
	if !PaymentMethodUPI.Valid() || !PaymentMethodCOD.Valid() {
		t.Fatal("known methods rejected")
	}
	if PaymentMethod("card").Valid() {
		t.Fatal("unknown method accepted")
	}
}

func TestOrderSummary(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	order := Order{
		ID:            "ord_1",
		OrderNumber:   "202403011230421234",
		Status:        OrderStatusConfirmed,
		PaymentMethod: PaymentMethodCOD,
		PaymentStatus: PaymentStatusPending,
		Currency:      "INR",
		TotalAmount:   750,
		Items: []OrderItem{
			{Quantity: 2},
			{Quantity: 1},
		},
		CreatedAt: created,
	}

	got := order.Summary()
	if got.ItemCount != 3 {
		t.Fatalf("item count = %d, want 3", got.ItemCount)
	}
	if got.OrderNumber != order.OrderNumber || got.TotalAmount != 750 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created at = %v", got.CreatedAt)
	}
}
