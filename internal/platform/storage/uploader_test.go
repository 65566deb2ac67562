package storage

import (
	"context"
	"testing"

	gcs "cloud.google.com/go/storage"

	domain "github.com/blockbazaar/api/internal/domain"
)

func TestEvidenceUploaderRequiresBody(t *testing.T) {
	uploader, err := NewEvidenceUploader(&gcs.Client{}, "assets-bucket")
	if err != nil {
		t.Fatalf("new evidence uploader: %v", err)
	}

	_, err = uploader.UploadEvidence(context.Background(), domain.EvidenceUpload{
		OrderID:  "ord_1",
		FileName: "shot.png",
	})
	if err == nil {
		t.Fatal("expected error for upload without body")
	}
}

func TestNewEvidenceUploaderValidation(t *testing.T) {
	if _, err := NewEvidenceUploader(nil, "assets-bucket"); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewEvidenceUploader(&gcs.Client{}, "  "); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"shot.png", "shot.png"},
		{"  payment screenshot.jpg ", "payment_screenshot.jpg"},
		{"../../../etc/passwd", "passwd"},
		{"", "screenshot"},
		{"....", "screenshot"},
		{"receipt (1).png", "receipt__1_.png"},
	}
	for _, tc := range cases {
		if got := sanitizeFileName(tc.in); got != tc.want {
			t.Fatalf("sanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
