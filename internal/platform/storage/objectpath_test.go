package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectPath(t *testing.T) {
	cases := []struct {
		name string
		kind DocumentKind
		ref  ObjectRef
		want string
	}{
		{
			name: "packing slip keeps its file name",
			kind: KindPackingSlip,
			ref:  ObjectRef{OrderID: "4242", FileName: "packing-slip-1042.html"},
			want: "documents/orders/4242/packing-slips/packing-slip-1042.html",
		},
		{
			name: "invoice number is flattened",
			kind: KindInvoice,
			ref:  ObjectRef{OrderID: "4242", InvoiceNumber: "BRC/25-26/0042"},
			want: "documents/orders/4242/invoices/BRC-25-26-0042.html",
		},
		{
			name: "label defaults to pdf",
			kind: KindLabel,
			ref:  ObjectRef{OrderID: "4242", TrackingNumber: "794644790132"},
			want: "documents/orders/4242/labels/794644790132.pdf",
		},
		{
			name: "label extension follows content type",
			kind: KindLabel,
			ref:  ObjectRef{OrderID: "4242", TrackingNumber: "794644790132", ContentType: "image/png"},
			want: "documents/orders/4242/labels/794644790132.png",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ObjectPath(tc.kind, tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestObjectPathRejectsUnsafeInput(t *testing.T) {
	for name, ref := range map[string]ObjectRef{
		"traversal":     {OrderID: "..", TrackingNumber: "1"},
		"separator":     {OrderID: "42/43", TrackingNumber: "1"},
		"missing order": {TrackingNumber: "1"},
		"missing file":  {OrderID: "42"},
	} {
		_, err := ObjectPath(KindLabel, ref)
		assert.Error(t, err, name)
	}

	_, err := ObjectPath(DocumentKind("manifests"), ObjectRef{OrderID: "1", FileName: "a.html"})
	assert.Error(t, err)
}
