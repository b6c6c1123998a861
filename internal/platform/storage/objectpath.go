package storage

import (
	"fmt"
	"mime"
	"strings"
)

// DocumentKind selects the folder an archived document is filed under.
type DocumentKind string

const (
	KindPackingSlip DocumentKind = "packing-slips"
	KindInvoice     DocumentKind = "invoices"
	KindLabel       DocumentKind = "labels"
)

// ObjectRef identifies an archived document. When FileName is empty it is derived from
// the invoice number (invoices) or the tracking number (labels).
type ObjectRef struct {
	OrderID        string
	FileName       string
	InvoiceNumber  string
	TrackingNumber string
	// ContentType picks the derived file extension. Invoices default to .html, labels to .pdf.
	ContentType string
}

// ObjectPath returns documents/orders/{orderID}/{kind}/{file}.
func ObjectPath(kind DocumentKind, ref ObjectRef) (string, error) {
	var derived, fallbackExt string
	switch kind {
	case KindPackingSlip:
	case KindInvoice:
		// "BRC/25-26/0042" becomes "BRC-25-26-0042".
		derived = strings.ReplaceAll(strings.TrimSpace(ref.InvoiceNumber), "/", "-")
		fallbackExt = ".html"
	case KindLabel:
		derived = strings.TrimSpace(ref.TrackingNumber)
		fallbackExt = ".pdf"
	default:
		return "", fmt.Errorf("storage: unknown document kind %q", kind)
	}

	order, err := segment("order id", ref.OrderID)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(ref.FileName)
	if name == "" && derived != "" {
		name = derived + extension(ref.ContentType, fallbackExt)
	}
	file, err := segment("file name", name)
	if err != nil {
		return "", err
	}
	return "documents/orders/" + order + "/" + string(kind) + "/" + file, nil
}

func extension(contentType, fallback string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fallback
	}
	switch mediaType {
	case "application/pdf":
		return ".pdf"
	case "text/html":
		return ".html"
	case "image/png":
		return ".png"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return fallback
}

func segment(what, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", what)
	case strings.ContainsAny(value, `/\`):
		return "", fmt.Errorf("storage: %s %q contains a path separator", what, value)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s %q contains a traversal sequence", what, value)
	}
	return value, nil
}
