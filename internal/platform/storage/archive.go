package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

type writerFactory func(ctx context.Context, bucket, object, contentType string) io.WriteCloser

// Archive stores rendered documents and carrier labels in a Cloud Storage bucket.
type Archive struct {
	bucket string
	open   writerFactory
}

// NewArchive constructs an Archive backed by the provided Cloud Storage client.
func NewArchive(client *gcs.Client, bucket string) (*Archive, error) {
	if client == nil {
		return nil, errors.New("storage archive: client is required")
	}
	return newArchive(bucket, func(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		return w
	})
}

func newArchive(bucket string, open writerFactory) (*Archive, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage archive: bucket is required")
	}
	return &Archive{bucket: bucket, open: open}, nil
}

// Store writes body to objectPath. The object is only committed when Close succeeds.
func (a *Archive) Store(ctx context.Context, objectPath, contentType string, body []byte) error {
	if a == nil || a.open == nil {
		return errors.New("storage archive: not initialised")
	}
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" {
		return errors.New("storage archive: object path is required")
	}

	w := a.open(ctx, a.bucket, objectPath, contentType)
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage archive: write %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage archive: commit %s: %w", objectPath, err)
	}
	return nil
}

// Bucket returns the destination bucket name.
func (a *Archive) Bucket() string {
	return a.bucket
}
