package domain

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedComponents indicates the components metafield could not be read as a list of references.
var ErrMalformedComponents = errors.New("domain: malformed components metadata")

// MetadataKey enumerates the product metafields the back office understands.
type MetadataKey string

const (
	// MetadataPackingListName overrides the display name on packing slips and invoices.
	MetadataPackingListName MetadataKey = "packing_list_name"
	// MetadataExportLabelName is the customs name used for samples without a resolvable SKU.
	MetadataExportLabelName MetadataKey = "export_label_name"
	// MetadataComponents holds a JSON array of component product references.
	MetadataComponents MetadataKey = "components"
)

// MetadataKeys lists every recognised key in a stable order.
var MetadataKeys = []MetadataKey{MetadataPackingListName, MetadataExportLabelName, MetadataComponents}

// ParseMetadataKey resolves a raw metafield key. Unknown keys are rejected.
func ParseMetadataKey(raw string) (MetadataKey, bool) {
	key := MetadataKey(strings.TrimSpace(raw))
	for _, known := range MetadataKeys {
		if key == known {
			return key, true
		}
	}
	return "", false
}

// ProductMetadata is the product record returned by a metadata provider: the product's own
// identity plus the recognised metafields.
type ProductMetadata struct {
	ProductID string
	Title     string
	VariantID string
	SKU       string
	Price     decimal.Decimal
	Fields    map[MetadataKey]string
}

// Value returns the trimmed metafield value or an empty string.
func (m ProductMetadata) Value(key MetadataKey) string {
	if m.Fields == nil {
		return ""
	}
	return strings.TrimSpace(m.Fields[key])
}

// Set stores a metafield value, ignoring unknown keys.
func (m *ProductMetadata) Set(raw, value string) bool {
	key, ok := ParseMetadataKey(raw)
	if !ok {
		return false
	}
	if m.Fields == nil {
		m.Fields = make(map[MetadataKey]string, len(MetadataKeys))
	}
	m.Fields[key] = value
	return true
}

func (m ProductMetadata) PackingListName() string { return m.Value(MetadataPackingListName) }

func (m ProductMetadata) ExportLabelName() string { return m.Value(MetadataExportLabelName) }

// ComponentRefs decodes the components metafield. An absent value yields no references;
// anything other than a non-empty JSON array of strings yields ErrMalformedComponents.
func (m ProductMetadata) ComponentRefs() ([]string, error) {
	raw := m.Value(MetadataComponents)
	if raw == "" {
		return nil, nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, ErrMalformedComponents
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if trimmed := strings.TrimSpace(ref); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil, ErrMalformedComponents
	}
	return out, nil
}

// ComponentID extracts the trailing path segment of a component reference,
// e.g. "gid://shopify/Product/42" yields "42".
func ComponentID(ref string) string {
	ref = strings.TrimRight(strings.TrimSpace(ref), "/")
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}
