package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

const (
	defaultCallTimeout = 10 * time.Second

	expanderEventMalformedComponents = "expander.malformed_components"
	expanderEventComponentMissing    = "expander.component_missing"
	expanderEventProductMissing      = "expander.product_missing"
)

var (
	hsTokenPattern   = regexp.MustCompile(`\(HS(\d+)\)`)
	sampleSKUPattern = regexp.MustCompile(`BRC-FP-\d{3}`)

	customsPriceFactor = decimal.RequireFromString("0.25")
)

// ComponentExpanderDeps wires the collaborators used to expand sold items.
type ComponentExpanderDeps struct {
	Metadata MetadataProvider
	// Inventory is optional; without it no harmonized codes are looked up.
	Inventory            InventoryProvider
	CallTimeout          time.Duration
	CountryOfManufacture string
	Logger               func(ctx context.Context, event string, fields map[string]any)
}

type componentExpander struct {
	metadata  MetadataProvider
	inventory InventoryProvider
	timeout   time.Duration
	country   string
	logger    func(context.Context, string, map[string]any)
}

// NewComponentExpander constructs a ComponentExpander.
func NewComponentExpander(deps ComponentExpanderDeps) (ComponentExpander, error) {
	if deps.Metadata == nil {
		return nil, errors.New("component expander: metadata provider is required")
	}
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	country := strings.ToUpper(strings.TrimSpace(deps.CountryOfManufacture))
	if country == "" {
		country = domain.DefaultCountryOfManufacture
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &componentExpander{
		metadata:  deps.Metadata,
		inventory: deps.Inventory,
		timeout:   timeout,
		country:   country,
		logger:    logger,
	}, nil
}

func (e *componentExpander) Expand(ctx context.Context, item SoldItem) (ExpandedLine, error) {
	line := ExpandedLine{Item: item, Name: strings.TrimSpace(item.Title)}

	switch {
	case item.IsTerminal():
		line.HSCode = TitleHSCode(item.Title)
		return line, nil
	case item.IsSample():
		return e.expandSample(ctx, line)
	}

	meta, found, err := e.itemMetadata(ctx, item)
	if err != nil {
		return ExpandedLine{}, err
	}
	if !found {
		return e.withItemHSCode(ctx, line, "")
	}
	if name := meta.PackingListName(); name != "" {
		line.Name = name
	}
	line.Components, err = e.components(ctx, item, meta)
	if err != nil {
		return ExpandedLine{}, err
	}
	return e.withItemHSCode(ctx, line, meta.VariantID)
}

func (e *componentExpander) expandSample(ctx context.Context, line ExpandedLine) (ExpandedLine, error) {
	item := line.Item
	if sku := SampleSKU(item.Properties); sku != "" {
		meta, err := e.fetchMetadata(ctx, "sku", sku, e.metadata.MetadataBySKU)
		switch {
		case err == nil:
			if name := meta.PackingListName(); name != "" {
				line.Name = name
			}
			line.Components, err = e.components(ctx, item, meta)
			if err != nil {
				return ExpandedLine{}, err
			}
			return e.withItemHSCode(ctx, line, meta.VariantID)
		case !isProductNotFound(err):
			return ExpandedLine{}, err
		}
		e.logger(ctx, expanderEventProductMissing, map[string]any{"sku": sku, "lineItemID": item.ID})
	}

	meta, found, err := e.itemMetadata(ctx, item)
	if err != nil {
		return ExpandedLine{}, err
	}
	if found {
		if name := meta.ExportLabelName(); name != "" {
			line.Name = name
		}
	}
	return e.withItemHSCode(ctx, line, meta.VariantID)
}

// itemMetadata loads the sold item's own product record. A product deleted from the
// storefront is reported as not found rather than failing the document.
func (e *componentExpander) itemMetadata(ctx context.Context, item SoldItem) (ProductMetadata, bool, error) {
	var (
		meta ProductMetadata
		err  error
	)
	switch {
	case strings.TrimSpace(item.ProductID) != "":
		meta, err = e.fetchMetadata(ctx, "product", item.ProductID, e.metadata.Metadata)
	case strings.TrimSpace(item.SKU) != "":
		meta, err = e.fetchMetadata(ctx, "sku", item.SKU, e.metadata.MetadataBySKU)
	default:
		return ProductMetadata{}, false, nil
	}
	if err != nil {
		if isProductNotFound(err) {
			e.logger(ctx, expanderEventProductMissing, map[string]any{
				"productID":  item.ProductID,
				"sku":        item.SKU,
				"lineItemID": item.ID,
			})
			return ProductMetadata{}, false, nil
		}
		return ProductMetadata{}, false, err
	}
	return meta, true, nil
}

func (e *componentExpander) components(ctx context.Context, item SoldItem, meta ProductMetadata) ([]ComponentLine, error) {
	refs, err := meta.ComponentRefs()
	if err != nil {
		e.logger(ctx, expanderEventMalformedComponents, map[string]any{
			"productID": meta.ProductID,
			"raw":       meta.Value(domain.MetadataComponents),
		})
		return nil, nil
	}
	if len(refs) == 0 {
		return nil, nil
	}

	lines := make([]ComponentLine, 0, len(refs))
	for _, ref := range refs {
		id := domain.ComponentID(ref)
		component := ComponentLine{
			Reference:            ref,
			ProductID:            id,
			Name:                 ref,
			Quantity:             item.Quantity,
			UnitPrice:            decimal.Zero,
			CountryOfManufacture: e.country,
		}
		componentMeta, err := e.fetchMetadata(ctx, "product", id, e.metadata.Metadata)
		switch {
		case err == nil:
			component.Name = firstNonEmpty(componentMeta.PackingListName(), componentMeta.ExportLabelName(), strings.TrimSpace(componentMeta.Title), ref)
			component.VariantID = componentMeta.VariantID
			component.UnitPrice = CustomsUnitPrice(componentMeta.Price)
		case isProductNotFound(err):
			e.logger(ctx, expanderEventComponentMissing, map[string]any{
				"productID": meta.ProductID,
				"reference": ref,
			})
		default:
			return nil, err
		}
		if component.VariantID != "" {
			hs, err := e.hsCode(ctx, component.VariantID)
			if err != nil {
				return nil, err
			}
			component.HSCode = hs
		}
		lines = append(lines, component)
	}
	return lines, nil
}

// withItemHSCode resolves the harmonized code of an item that is invoiced as a single row.
func (e *componentExpander) withItemHSCode(ctx context.Context, line ExpandedLine, fallbackVariantID string) (ExpandedLine, error) {
	if line.HasComponents() {
		return line, nil
	}
	variantID := firstNonEmpty(strings.TrimSpace(line.Item.VariantID), fallbackVariantID)
	if variantID == "" {
		return line, nil
	}
	hs, err := e.hsCode(ctx, variantID)
	if err != nil {
		return ExpandedLine{}, err
	}
	line.HSCode = hs
	return line, nil
}

func (e *componentExpander) hsCode(ctx context.Context, variantID string) (string, error) {
	if e.inventory == nil {
		return "", nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	inventoryItemID, err := e.inventory.InventoryItemID(callCtx, variantID)
	if err != nil {
		if isProductNotFound(err) {
			e.logger(ctx, expanderEventProductMissing, map[string]any{"variantID": variantID})
			return "", nil
		}
		return "", fmt.Errorf("%w: inventory item for variant %s: %w", ErrUpstreamFetch, variantID, err)
	}
	if inventoryItemID == "" {
		return "", nil
	}
	hs, err := e.inventory.HSCode(callCtx, inventoryItemID)
	if err != nil {
		if isProductNotFound(err) {
			e.logger(ctx, expanderEventProductMissing, map[string]any{"variantID": variantID, "inventoryItemID": inventoryItemID})
			return "", nil
		}
		return "", fmt.Errorf("%w: hs code for inventory item %s: %w", ErrUpstreamFetch, inventoryItemID, err)
	}
	return strings.TrimSpace(hs), nil
}

func (e *componentExpander) fetchMetadata(ctx context.Context, kind, key string, fetch func(context.Context, string) (ProductMetadata, error)) (ProductMetadata, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	meta, err := fetch(callCtx, key)
	if err != nil {
		if isProductNotFound(err) {
			return ProductMetadata{}, err
		}
		return ProductMetadata{}, fmt.Errorf("%w: metadata for %s %s: %w", ErrUpstreamFetch, kind, key, err)
	}
	return meta, nil
}

// TitleHSCode extracts the digits of the first "(HS1234)" token in a title.
func TitleHSCode(title string) string {
	match := hsTokenPattern.FindStringSubmatch(title)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// SampleSKU returns the first sample SKU found in the item's properties, scanning values
// before names.
func SampleSKU(properties []domain.Property) string {
	for _, property := range properties {
		if sku := sampleSKUPattern.FindString(property.Value); sku != "" {
			return sku
		}
	}
	for _, property := range properties {
		if sku := sampleSKUPattern.FindString(property.Name); sku != "" {
			return sku
		}
	}
	return ""
}

// CustomsUnitPrice is the declared customs value of one unit: a quarter of the sale price.
func CustomsUnitPrice(price decimal.Decimal) decimal.Decimal {
	return price.Mul(customsPriceFactor).Round(2)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
