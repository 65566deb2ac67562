package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	domain "github.com/blockbazaar/api/internal/domain"
)

const uploadTimestampLayout = "20060102T150405"

// EvidenceUploader stores payment screenshots in Cloud Storage under the
// order's evidence prefix and returns the object's public URL.
type EvidenceUploader struct {
	client *gcs.Client
	bucket string
	now    func() time.Time
}

// EvidenceUploaderOption customises uploader behaviour.
type EvidenceUploaderOption func(*EvidenceUploader)

// WithUploadClock injects a custom clock (useful for tests).
func WithUploadClock(clock func() time.Time) EvidenceUploaderOption {
	return func(u *EvidenceUploader) {
		if clock != nil {
			u.now = clock
		}
	}
}

// NewEvidenceUploader constructs an uploader writing to the given bucket.
func NewEvidenceUploader(client *gcs.Client, bucket string, opts ...EvidenceUploaderOption) (*EvidenceUploader, error) {
	if client == nil {
		return nil, errors.New("evidence uploader: storage client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("evidence uploader: bucket is required")
	}

	uploader := &EvidenceUploader{
		client: client,
		bucket: bucket,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(uploader)
		}
	}
	return uploader, nil
}

// UploadEvidence writes the screenshot object and returns its public URL. The
// object name is prefixed with the upload time so resubmissions never clobber
// earlier evidence.
func (u *EvidenceUploader) UploadEvidence(ctx context.Context, upload domain.EvidenceUpload) (string, error) {
	if u == nil || u.client == nil {
		return "", errors.New("evidence uploader: not initialised")
	}
	if upload.Body == nil {
		return "", errors.New("evidence uploader: body is required")
	}

	fileName := sanitizeFileName(upload.FileName)
	stamped := fmt.Sprintf("%s-%s", u.now().UTC().Format(uploadTimestampLayout), fileName)

	object, err := BuildObjectPath(PurposePaymentEvidence, PathParams{
		OrderID:  upload.OrderID,
		FileName: stamped,
	})
	if err != nil {
		return "", err
	}

	writer := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	if ct := strings.TrimSpace(upload.ContentType); ct != "" {
		writer.ContentType = ct
	}
	if _, err := io.Copy(writer, upload.Body); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("evidence uploader: write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("evidence uploader: close object: %w", err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, object), nil
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return "screenshot"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		return "screenshot"
	}
	return cleaned
}
