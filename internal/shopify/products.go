package shopify

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

const productFields = `
	id
	title
	variants(first: 1) { nodes { id sku price } }
	packingListName: metafield(namespace: $namespace, key: "packing_list_name") { value }
	exportLabelName: metafield(namespace: $namespace, key: "export_label_name") { value }
	components: metafield(namespace: $namespace, key: "components") { value }
`

const productQuery = `query ProductMetadata($id: ID!, $namespace: String!) {
	product(id: $id) {` + productFields + `}
}`

const variantBySKUQuery = `query VariantBySKU($query: String!, $namespace: String!) {
	productVariants(first: 1, query: $query) {
		nodes {
			id
			sku
			price
			product {` + productFields + `}
		}
	}
}`

const inventoryItemQuery = `query VariantInventoryItem($id: ID!) {
	productVariant(id: $id) { inventoryItem { id } }
}`

const hsCodeQuery = `query InventoryItemHSCode($id: ID!) {
	inventoryItem(id: $id) { harmonizedSystemCode }
}`

// Metadata loads a product's identity, first variant and back-office metafields.
func (c *Client) Metadata(ctx context.Context, productID string) (domain.ProductMetadata, error) {
	data, err := c.query(ctx, "ProductMetadata", productQuery, map[string]any{
		"id":        gid("Product", productID),
		"namespace": c.namespace,
	})
	if err != nil {
		return domain.ProductMetadata{}, err
	}
	product := data.Get("product")
	if !product.IsObject() {
		return domain.ProductMetadata{}, fmt.Errorf("%w: product %s: %w", ErrNotFound, productID, domain.ErrProductNotFound)
	}
	return decodeProduct(product, product.Get("variants.nodes.0"))
}

// MetadataBySKU resolves a product through the variant SKU index.
func (c *Client) MetadataBySKU(ctx context.Context, sku string) (domain.ProductMetadata, error) {
	sku = strings.TrimSpace(sku)
	data, err := c.query(ctx, "VariantBySKU", variantBySKUQuery, map[string]any{
		"query":     fmt.Sprintf("sku:%q", sku),
		"namespace": c.namespace,
	})
	if err != nil {
		return domain.ProductMetadata{}, err
	}
	variant := data.Get("productVariants.nodes.0")
	if !variant.Get("product").IsObject() {
		return domain.ProductMetadata{}, fmt.Errorf("%w: sku %s: %w", ErrNotFound, sku, domain.ErrProductNotFound)
	}
	return decodeProduct(variant.Get("product"), variant)
}

// InventoryItemID returns the inventory item behind a variant, or an empty string when the
// variant does not track inventory.
func (c *Client) InventoryItemID(ctx context.Context, variantID string) (string, error) {
	data, err := c.query(ctx, "VariantInventoryItem", inventoryItemQuery, map[string]any{
		"id": gid("ProductVariant", variantID),
	})
	if err != nil {
		return "", err
	}
	variant := data.Get("productVariant")
	if !variant.IsObject() {
		return "", fmt.Errorf("%w: variant %s: %w", ErrNotFound, variantID, domain.ErrProductNotFound)
	}
	return legacyID(variant.Get("inventoryItem.id").String()), nil
}

// HSCode returns the harmonized system code recorded on an inventory item.
func (c *Client) HSCode(ctx context.Context, inventoryItemID string) (string, error) {
	data, err := c.query(ctx, "InventoryItemHSCode", hsCodeQuery, map[string]any{
		"id": gid("InventoryItem", inventoryItemID),
	})
	if err != nil {
		return "", err
	}
	item := data.Get("inventoryItem")
	if !item.IsObject() {
		return "", fmt.Errorf("%w: inventory item %s: %w", ErrNotFound, inventoryItemID, domain.ErrProductNotFound)
	}
	return strings.TrimSpace(item.Get("harmonizedSystemCode").String()), nil
}

func decodeProduct(product, variant gjson.Result) (domain.ProductMetadata, error) {
	meta := domain.ProductMetadata{
		ProductID: legacyID(product.Get("id").String()),
		Title:     strings.TrimSpace(product.Get("title").String()),
		VariantID: legacyID(variant.Get("id").String()),
		SKU:       strings.TrimSpace(variant.Get("sku").String()),
		Price:     decimal.Zero,
	}
	if raw := strings.TrimSpace(variant.Get("price").String()); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.ProductMetadata{}, fmt.Errorf("shopify: product %s: invalid price %q: %w", meta.ProductID, raw, err)
		}
		meta.Price = price
	}
	for alias, key := range map[string]domain.MetadataKey{
		"packingListName": domain.MetadataPackingListName,
		"exportLabelName": domain.MetadataExportLabelName,
		"components":      domain.MetadataComponents,
	} {
		if value := product.Get(alias + ".value"); value.Exists() {
			meta.Set(string(key), value.String())
		}
	}
	return meta, nil
}
