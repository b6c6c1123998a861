package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

func giftBoxCatalog() *metadataStub {
	return &metadataStub{
		products: map[string]ProductMetadata{
			"100": metadata("100", "Gift Box Deluxe", "v100", "1200", map[domain.MetadataKey]string{
				domain.MetadataPackingListName: "Gift Box",
				domain.MetadataComponents:      `["gid://shopify/Product/11","gid://shopify/Product/12"]`,
			}),
			"11": metadata("11", "Ceramic Mug", "v11", "40", nil),
			"12": metadata("12", "Coasters", "v12", "60", map[domain.MetadataKey]string{
				domain.MetadataPackingListName: "Coaster Set",
			}),
		},
	}
}

func newTestExpander(t *testing.T, meta MetadataProvider, inventory InventoryProvider, logger func(context.Context, string, map[string]any)) ComponentExpander {
	t.Helper()
	expander, err := NewComponentExpander(ComponentExpanderDeps{
		Metadata:    meta,
		Inventory:   inventory,
		CallTimeout: time.Second,
		Logger:      logger,
	})
	require.NoError(t, err)
	return expander
}

func TestComponentExpanderRequiresMetadata(t *testing.T) {
	_, err := NewComponentExpander(ComponentExpanderDeps{})
	require.Error(t, err)
}

func TestComponentExpanderExpandsComponentsWithParentQuantity(t *testing.T) {
	inventory := &inventoryStub{
		items: map[string]string{"v11": "inv11", "v12": "inv12"},
		codes: map[string]string{"inv11": "6912", "inv12": "4419"},
	}
	expander := newTestExpander(t, giftBoxCatalog(), inventory, nil)

	line, err := expander.Expand(context.Background(), SoldItem{
		ID:        "li-1",
		ProductID: "100",
		VariantID: "v100",
		SKU:       "BRC-GB-001",
		Title:     "Gift Box Deluxe",
		Quantity:  3,
		Price:     dec("1200"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Gift Box", line.Name)
	require.Len(t, line.Components, 2)

	mug := line.Components[0]
	assert.Equal(t, "11", mug.ProductID)
	assert.Equal(t, "Ceramic Mug", mug.Name)
	assert.Equal(t, 3, mug.Quantity)
	assert.True(t, mug.UnitPrice.Equal(dec("10")), "unit price %s", mug.UnitPrice)
	assert.Equal(t, "6912", mug.HSCode)
	assert.Equal(t, "IN", mug.CountryOfManufacture)

	coasters := line.Components[1]
	assert.Equal(t, "Coaster Set", coasters.Name)
	assert.Equal(t, 3, coasters.Quantity)
	assert.True(t, coasters.UnitPrice.Equal(dec("15")))
	assert.Equal(t, "4419", coasters.HSCode)
	assert.Empty(t, line.HSCode)
}

func TestComponentExpanderTerminalItemUsesTitleToken(t *testing.T) {
	catalog := &metadataStub{}
	expander := newTestExpander(t, catalog, &inventoryStub{}, nil)

	line, err := expander.Expand(context.Background(), SoldItem{
		ID:       "li-2",
		Title:    "Custom engraving (HS4420) extra",
		Quantity: 1,
		Price:    dec("20"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Custom engraving (HS4420) extra", line.Name)
	assert.Equal(t, "4420", line.HSCode)
	assert.False(t, line.HasComponents())
	assert.Zero(t, catalog.totalCalls())
}

func TestComponentExpanderTerminalItemWithoutToken(t *testing.T) {
	expander := newTestExpander(t, &metadataStub{}, nil, nil)

	line, err := expander.Expand(context.Background(), SoldItem{Title: "Gift wrap", Quantity: 1})
	require.NoError(t, err)
	assert.Empty(t, line.HSCode)
	assert.Equal(t, "Gift wrap", line.Name)
}

func TestComponentExpanderSampleWithSKU(t *testing.T) {
	catalog := &metadataStub{
		skus: map[string]ProductMetadata{
			"BRC-FP-007": metadata("700", "Tasting Flight", "v700", "400", map[domain.MetadataKey]string{
				domain.MetadataPackingListName: "Flight Pack 7",
				domain.MetadataComponents:      `["gid://shopify/Product/11"]`,
			}),
		},
		products: map[string]ProductMetadata{
			"11": metadata("11", "Ceramic Mug", "v11", "40", nil),
		},
	}
	expander := newTestExpander(t, catalog, nil, nil)

	line, err := expander.Expand(context.Background(), SoldItem{
		ProductID: "900",
		Title:     "Sample Pack",
		Quantity:  2,
		Properties: []domain.Property{
			{Name: "Gift note", Value: "Happy birthday"},
			{Name: "Flight", Value: "BRC-FP-007 assorted"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Flight Pack 7", line.Name)
	require.Len(t, line.Components, 1)
	assert.Equal(t, 2, line.Components[0].Quantity)
	assert.Equal(t, 1, catalog.callCount("sku:BRC-FP-007"))
	assert.Zero(t, catalog.callCount("id:900"))
}

func TestComponentExpanderSampleFallsBackToExportLabel(t *testing.T) {
	catalog := &metadataStub{
		products: map[string]ProductMetadata{
			"900": metadata("900", "Sample Pack", "v900", "100", map[domain.MetadataKey]string{
				domain.MetadataExportLabelName: "Tea sample",
				domain.MetadataComponents:      `["gid://shopify/Product/11"]`,
			}),
		},
	}
	inventory := &inventoryStub{
		items: map[string]string{"v900": "inv900"},
		codes: map[string]string{"inv900": "0902"},
	}
	expander := newTestExpander(t, catalog, inventory, nil)

	line, err := expander.Expand(context.Background(), SoldItem{
		ProductID: "900",
		Title:     "Sample Pack",
		Quantity:  1,
		Properties: []domain.Property{
			{Name: "Flavour", Value: "Masala"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tea sample", line.Name)
	assert.False(t, line.HasComponents())
	assert.Equal(t, "0902", line.HSCode, "falls back to the product's own variant")

	line, err = expander.Expand(context.Background(), SoldItem{
		ProductID: "900",
		VariantID: "v900-b",
		Title:     "Sample Pack",
		Quantity:  1,
	})
	require.NoError(t, err)
	assert.Empty(t, line.HSCode, "the sold variant takes precedence")
	assert.Equal(t, []string{"v900", "v900-b"}, inventory.lookups)
}

func TestComponentExpanderMalformedComponentsDegrade(t *testing.T) {
	cases := map[string]string{
		"invalid json": `["gid://shopify/Product/11"`,
		"not an array": `{"id":"11"}`,
		"empty array":  `[]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			catalog := &metadataStub{
				products: map[string]ProductMetadata{
					"100": metadata("100", "Gift Box", "v100", "80", map[domain.MetadataKey]string{
						domain.MetadataComponents: raw,
					}),
				},
			}
			recorder := &eventRecorder{}
			expander := newTestExpander(t, catalog, nil, recorder.log)

			line, err := expander.Expand(context.Background(), SoldItem{ProductID: "100", Title: "Gift Box", Quantity: 1})
			require.NoError(t, err)
			assert.False(t, line.HasComponents())
			assert.Equal(t, "Gift Box", line.Name)
			assert.True(t, recorder.has(expanderEventMalformedComponents))
		})
	}
}

func TestComponentExpanderUpstreamFailureAborts(t *testing.T) {
	boom := errors.New("shopify: 503")
	catalog := giftBoxCatalog()
	catalog.errs = map[string]error{"id:12": boom}
	expander := newTestExpander(t, catalog, nil, nil)

	_, err := expander.Expand(context.Background(), SoldItem{ProductID: "100", Title: "Gift Box Deluxe", Quantity: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamFetch)
	assert.ErrorIs(t, err, boom)
}

func TestComponentExpanderInventoryFailureAborts(t *testing.T) {
	boom := errors.New("inventory down")
	expander := newTestExpander(t, giftBoxCatalog(), &inventoryStub{err: boom}, nil)

	_, err := expander.Expand(context.Background(), SoldItem{ProductID: "100", Title: "Gift Box Deluxe", Quantity: 1})
	assert.ErrorIs(t, err, ErrUpstreamFetch)
	assert.ErrorIs(t, err, boom)
}

func TestComponentExpanderDeletedVariantLeavesHSCodeEmpty(t *testing.T) {
	recorder := &eventRecorder{}
	inventory := &inventoryStub{err: fmt.Errorf("shopify: variant gid://shopify/ProductVariant/11: %w", domain.ErrProductNotFound)}
	expander := newTestExpander(t, giftBoxCatalog(), inventory, recorder.log)

	line, err := expander.Expand(context.Background(), SoldItem{ProductID: "100", Title: "Gift Box Deluxe", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, line.Components, 2)
	for _, component := range line.Components {
		assert.Empty(t, component.HSCode)
	}
	assert.True(t, recorder.has(expanderEventProductMissing))

	line, err = expander.Expand(context.Background(), SoldItem{ID: "li-7", ProductID: "gone", VariantID: "v-gone", Title: "Retired Lamp", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "Retired Lamp", line.Name)
	assert.Empty(t, line.HSCode)
}

func TestComponentExpanderComponentNameFallsBackToExportLabel(t *testing.T) {
	catalog := &metadataStub{
		products: map[string]ProductMetadata{
			"100": metadata("100", "Gift Box", "v100", "80", map[domain.MetadataKey]string{
				domain.MetadataComponents: `["gid://shopify/Product/21"]`,
			}),
			"21": metadata("21", "SKU-21 raw title", "v21", "40", map[domain.MetadataKey]string{
				domain.MetadataExportLabelName: "Incense sticks",
			}),
		},
	}
	expander := newTestExpander(t, catalog, nil, nil)

	line, err := expander.Expand(context.Background(), SoldItem{ProductID: "100", Title: "Gift Box", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, line.Components, 1)
	assert.Equal(t, "Incense sticks", line.Components[0].Name)
}

func TestComponentExpanderMissingComponentUsesReference(t *testing.T) {
	catalog := &metadataStub{
		products: map[string]ProductMetadata{
			"100": metadata("100", "Gift Box", "v100", "80", map[domain.MetadataKey]string{
				domain.MetadataComponents: `["gid://shopify/Product/99"]`,
			}),
		},
	}
	recorder := &eventRecorder{}
	expander := newTestExpander(t, catalog, nil, recorder.log)

	line, err := expander.Expand(context.Background(), SoldItem{ProductID: "100", Title: "Gift Box", Quantity: 4})
	require.NoError(t, err)
	require.Len(t, line.Components, 1)
	assert.Equal(t, "gid://shopify/Product/99", line.Components[0].Name)
	assert.Equal(t, "99", line.Components[0].ProductID)
	assert.True(t, line.Components[0].UnitPrice.IsZero())
	assert.Equal(t, 4, line.Components[0].Quantity)
	assert.True(t, recorder.has(expanderEventComponentMissing))
}

func TestComponentExpanderItemWithoutComponentsResolvesHSCode(t *testing.T) {
	catalog := &metadataStub{
		products: map[string]ProductMetadata{
			"200": metadata("200", "Brass Bowl", "v200", "50", nil),
		},
	}
	inventory := &inventoryStub{
		items: map[string]string{"v200-a": "inv200"},
		codes: map[string]string{"inv200": "7418"},
	}
	expander := newTestExpander(t, catalog, inventory, nil)

	line, err := expander.Expand(context.Background(), SoldItem{ProductID: "200", VariantID: "v200-a", Title: "Brass Bowl", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "Brass Bowl", line.Name)
	assert.Equal(t, "7418", line.HSCode)
}

func TestComponentExpanderCallTimeout(t *testing.T) {
	expander, err := NewComponentExpander(ComponentExpanderDeps{
		Metadata:    &metadataStub{block: true},
		CallTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = expander.Expand(context.Background(), SoldItem{ProductID: "100", Title: "Gift Box", Quantity: 1})
	assert.ErrorIs(t, err, ErrUpstreamFetch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSampleSKUScansValuesBeforeNames(t *testing.T) {
	props := []domain.Property{
		{Name: "BRC-FP-001", Value: "yes"},
		{Name: "Pack", Value: "BRC-FP-002"},
	}
	assert.Equal(t, "BRC-FP-002", SampleSKU(props))
	assert.Equal(t, "BRC-FP-001", SampleSKU(props[:1]))
	assert.Empty(t, SampleSKU(nil))
}

func TestCustomsUnitPrice(t *testing.T) {
	assert.True(t, CustomsUnitPrice(dec("40")).Equal(dec("10")))
	assert.True(t, CustomsUnitPrice(dec("10.10")).Equal(dec("2.53")))
	assert.True(t, CustomsUnitPrice(dec("0")).IsZero())
}
