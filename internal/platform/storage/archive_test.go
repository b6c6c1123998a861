package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

type memoryWriter struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestArchiveStoreWritesObject(t *testing.T) {
	var (
		gotBucket, gotObject, gotType string
		writer                        = &memoryWriter{}
	)
	archive, err := newArchive("brc-documents", func(_ context.Context, bucket, object, contentType string) io.WriteCloser {
		gotBucket, gotObject, gotType = bucket, object, contentType
		return writer
	})
	if err != nil {
		t.Fatalf("newArchive: %v", err)
	}

	if err := archive.Store(context.Background(), "documents/orders/1/labels/1.pdf", "application/pdf", []byte("%PDF")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if gotBucket != "brc-documents" || gotObject != "documents/orders/1/labels/1.pdf" || gotType != "application/pdf" {
		t.Fatalf("unexpected destination %s/%s (%s)", gotBucket, gotObject, gotType)
	}
	if writer.String() != "%PDF" || !writer.closed {
		t.Fatalf("expected committed body, got %q closed=%v", writer.String(), writer.closed)
	}
}

func TestArchiveStoreReportsCommitFailure(t *testing.T) {
	commitErr := errors.New("precondition failed")
	archive, err := newArchive("brc-documents", func(context.Context, string, string, string) io.WriteCloser {
		return &memoryWriter{closeErr: commitErr}
	})
	if err != nil {
		t.Fatalf("newArchive: %v", err)
	}

	err = archive.Store(context.Background(), "documents/x.html", "text/html", []byte("<p>"))
	if !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestArchiveValidation(t *testing.T) {
	if _, err := NewArchive(nil, "bucket"); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := newArchive(" ", nil); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
	archive, err := newArchive("bucket", func(context.Context, string, string, string) io.WriteCloser { return &memoryWriter{} })
	if err != nil {
		t.Fatalf("newArchive: %v", err)
	}
	if err := archive.Store(context.Background(), "", "text/html", nil); err == nil {
		t.Fatalf("expected error for empty object path")
	}
}
