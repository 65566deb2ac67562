package domain

import (
	"strings"
	"testing"
	"time"
)

func TestComposeEvidenceNote(t *testing.T) {
	note := ComposeEvidenceNote("TXN123", "https://cdn.example.com/orders/ord_1/evidence/proof.png")

	if !strings.Contains(note, "Transaction ID: TXN123") {
		t.Fatalf("note missing transaction id: %q", note)
	}
	if !strings.Contains(note, "Screenshot uploaded") {
		t.Fatalf("note missing upload flag: %q", note)
	}
	if !strings.Contains(note, "Screenshot URL: https://cdn.example.com/orders/ord_1/evidence/proof.png") {
		t.Fatalf("note missing screenshot url: %q", note)
	}
}

func TestComposeEvidenceNoteWithoutURL(t *testing.T) {
	note := ComposeEvidenceNote("TXN456", "")

	if !strings.Contains(note, "Transaction ID: TXN456") {
		t.Fatalf("note missing transaction id: %q", note)
	}
	if !strings.Contains(note, "Screenshot uploaded") {
		t.Fatalf("note missing upload flag: %q", note)
	}
	if strings.Contains(note, "Screenshot URL:") {
		t.Fatalf("note should omit url segment when upload failed: %q", note)
	}
}

func TestAppendEvidenceNoteKeepsExistingNotes(t *testing.T) {
	got := AppendEvidenceNote("gift wrap please", "TXN1", "")

	if !strings.HasPrefix(got, "gift wrap please\n") {
		t.Fatalf("existing notes lost: %q", got)
	}
	if !strings.Contains(got, "Transaction ID: TXN1") {
		t.Fatalf("evidence sentence missing: %q", got)
	}
}

func TestParseEvidenceNote(t *testing.T) {
	tests := []struct {
		name    string
		notes   string
		wantTxn string
		wantURL string
	}{
		{
			name:    "full sentence",
			notes:   ComposeEvidenceNote("TXN123", "https://cdn.example.com/proof.png"),
			wantTxn: "TXN123",
			wantURL: "https://cdn.example.com/proof.png",
		},
		{
			name:    "no url",
			notes:   ComposeEvidenceNote("TXN789", ""),
			wantTxn: "TXN789",
		},
		{
			name:    "embedded in customer notes",
			notes:   "deliver after 6pm\n" + ComposeEvidenceNote("UPI-42", "https://cdn.example.com/x.jpg"),
			wantTxn: "UPI-42",
			wantURL: "https://cdn.example.com/x.jpg",
		},
		{
			name:  "plain note",
			notes: "deliver after 6pm",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			txn, url := ParseEvidenceNote(tc.notes)
			if txn != tc.wantTxn {
				t.Fatalf("transaction id = %q, want %q", txn, tc.wantTxn)
			}
			if url != tc.wantURL {
				t.Fatalf("screenshot url = %q, want %q", url, tc.wantURL)
			}
		})
	}
}

func TestEvidenceFromOrderPrefersStructuredFields(t *testing.T) {
	submitted := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	order := Order{
		Notes:    ComposeEvidenceNote("OLD-TXN", "https://cdn.example.com/old.png"),
		Evidence: &PaymentEvidence{TransactionID: "NEW-TXN", ScreenshotURL: "https://cdn.example.com/new.png", SubmittedAt: submitted},
	}

	got := EvidenceFromOrder(order)
	if got == nil {
		t.Fatal("expected evidence")
	}
	if got.TransactionID != "NEW-TXN" || got.ScreenshotURL != "https://cdn.example.com/new.png" {
		t.Fatalf("unexpected evidence: %+v", got)
	}
	if !got.SubmittedAt.Equal(submitted) {
		t.Fatalf("submitted at = %v, want %v", got.SubmittedAt, submitted)
	}
}

func TestEvidenceFromOrderFallsBackToNotes(t *testing.T) {
	order := Order{Notes: ComposeEvidenceNote("LEGACY-1", "https://cdn.example.com/legacy.png")}

	got := EvidenceFromOrder(order)
	if got == nil {
		t.Fatal("expected evidence parsed from notes")
	}
	if got.TransactionID != "LEGACY-1" {
		t.Fatalf("transaction id = %q", got.TransactionID)
	}
	if got.ScreenshotURL != "https://cdn.example.com/legacy.png" {
		t.Fatalf("screenshot url = %q", got.ScreenshotURL)
	}
}

func TestEvidenceFromOrderWithoutEvidence(t *testing.T) {
	if got := EvidenceFromOrder(Order{Notes: "leave at door"}); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
