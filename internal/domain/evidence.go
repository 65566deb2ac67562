package domain

import (
	"io"
	"regexp"
	"strings"
)

// Payment evidence is carried twice: as structured fields on the order and as
// a fixed sentence appended to the free-text notes. Older orders only have the
// sentence form, so readers fall back to parsing it.

const (
	evidenceNotePrefix       = "Payment evidence submitted."
	evidenceNoteSeparator    = " | "
	evidenceTransactionLabel = "Transaction ID: "
	evidenceScreenshotFlag   = "Screenshot uploaded"
	evidenceScreenshotLabel  = "Screenshot URL: "
)

var (
	evidenceTransactionPattern = regexp.MustCompile(`Transaction ID:\s*([^|\n]+)`)
	evidenceScreenshotPattern  = regexp.MustCompile(`Screenshot URL:\s*(\S+)`)
)

// EvidenceUpload carries a screenshot payload destined for object storage.
type EvidenceUpload struct {
	OrderID     string
	FileName    string
	ContentType string
	Body        io.Reader
}

// ComposeEvidenceNote renders the evidence sentence appended to order notes.
// The screenshot URL segment is omitted when the upload did not produce one.
func ComposeEvidenceNote(transactionID, screenshotURL string) string {
	parts := []string{
		evidenceNotePrefix + " " + evidenceTransactionLabel + strings.TrimSpace(transactionID),
		evidenceScreenshotFlag,
	}
	if url := strings.TrimSpace(screenshotURL); url != "" {
		parts = append(parts, evidenceScreenshotLabel+url)
	}
	return strings.Join(parts, evidenceNoteSeparator)
}

// AppendEvidenceNote appends the evidence sentence to existing order notes,
// keeping earlier note content intact.
func AppendEvidenceNote(notes, transactionID, screenshotURL string) string {
	sentence := ComposeEvidenceNote(transactionID, screenshotURL)
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return sentence
	}
	return notes + "\n" + sentence
}

// ParseEvidenceNote extracts the transaction id and screenshot URL from the
// free-text note convention. Both results are empty when the note carries no
// evidence sentence.
func ParseEvidenceNote(notes string) (transactionID, screenshotURL string) {
	if m := evidenceTransactionPattern.FindStringSubmatch(notes); len(m) == 2 {
		transactionID = strings.TrimSpace(m[1])
	}
	if m := evidenceScreenshotPattern.FindStringSubmatch(notes); len(m) == 2 {
		screenshotURL = strings.TrimSpace(m[1])
	}
	return transactionID, screenshotURL
}

// EvidenceFromOrder resolves the evidence view for an order, preferring the
// structured fields and falling back to the note parser for orders that
// predate them.
func EvidenceFromOrder(o Order) *PaymentEvidence {
	if o.Evidence != nil && o.Evidence.TransactionID != "" {
		copied := *o.Evidence
		return &copied
	}
	txn, url := ParseEvidenceNote(o.Notes)
	if txn == "" && url == "" {
		return nil
	}
	return &PaymentEvidence{TransactionID: txn, ScreenshotURL: url}
}
