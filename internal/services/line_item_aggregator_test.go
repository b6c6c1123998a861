package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

func boxCatalog() (*metadataStub, *inventoryStub) {
	catalog := &metadataStub{
		products: map[string]ProductMetadata{
			"1": metadata("1", "Large Box", "v1", "40", map[domain.MetadataKey]string{domain.MetadataPackingListName: "Box"}),
			"2": metadata("2", "Small Box", "v2", "20", map[domain.MetadataKey]string{domain.MetadataPackingListName: "Box"}),
			"3": metadata("3", "Gift Set", "v3", "500", map[domain.MetadataKey]string{
				domain.MetadataComponents: `["gid://shopify/Product/11","gid://shopify/Product/2"]`,
			}),
			"11": metadata("11", "Ceramic Mug", "v11", "40", nil),
		},
	}
	inventory := &inventoryStub{
		items: map[string]string{"v1": "inv1", "v2": "inv2", "v11": "inv11"},
		codes: map[string]string{"inv1": "1234", "inv2": "1234", "inv11": "6912"},
	}
	return catalog, inventory
}

func newTestAggregator(t *testing.T, meta MetadataProvider, inventory InventoryProvider) LineItemAggregator {
	t.Helper()
	aggregator, err := NewLineItemAggregator(LineItemAggregatorDeps{
		Expander: newTestExpander(t, meta, inventory, nil),
	})
	require.NoError(t, err)
	return aggregator
}

func TestLineItemAggregatorMergesByNameAndHSCode(t *testing.T) {
	catalog, inventory := boxCatalog()
	aggregator := newTestAggregator(t, catalog, inventory)

	result, err := aggregator.Aggregate(context.Background(), []SoldItem{
		{ID: "a", ProductID: "1", VariantID: "v1", Title: "Large Box", Quantity: 1, Price: dec("40")},
		{ID: "b", ProductID: "2", VariantID: "v2", Title: "Small Box", Quantity: 3, Price: dec("20")},
	})
	require.NoError(t, err)

	require.Len(t, result.Lines, 1)
	row := result.Lines[0]
	assert.Equal(t, "Box-1234", row.Key)
	assert.Equal(t, 4, row.Quantity)
	assert.True(t, row.UnitPrice.Equal(dec("10")), "first unit price persists, got %s", row.UnitPrice)
	assert.True(t, row.Total.Equal(dec("25")), "total %s", row.Total)
	assert.True(t, result.GrandTotal.Equal(dec("25")))
	assert.Equal(t, "IN", row.CountryOfManufacture)
}

func TestLineItemAggregatorKeepsFirstSeenOrder(t *testing.T) {
	catalog, inventory := boxCatalog()
	aggregator := newTestAggregator(t, catalog, inventory)

	result, err := aggregator.Aggregate(context.Background(), []SoldItem{
		{ID: "a", Title: "Engraving (HS4420)", Quantity: 2, Price: dec("8")},
		{ID: "b", ProductID: "3", VariantID: "v3", Title: "Gift Set", Quantity: 2, Price: dec("500")},
		{ID: "c", ProductID: "1", VariantID: "v1", Title: "Large Box", Quantity: 1, Price: dec("40")},
	})
	require.NoError(t, err)

	keys := make([]string, 0, len(result.Lines))
	for _, row := range result.Lines {
		keys = append(keys, row.Key)
	}
	assert.Equal(t, []string{"Engraving (HS4420)-4420", "Ceramic Mug-6912", "Box-1234"}, keys)

	box := result.Lines[2]
	assert.Equal(t, 3, box.Quantity)
	assert.True(t, box.UnitPrice.Equal(dec("5")), "component price is used first, got %s", box.UnitPrice)
	assert.True(t, box.Total.Equal(dec("20")))

	// 2*2 + 2*10 + (2*5 + 1*10)
	assert.True(t, result.GrandTotal.Equal(dec("44")), "grand total %s", result.GrandTotal)
}

func TestLineItemAggregatorSumsAreOrderIndependent(t *testing.T) {
	catalog, inventory := boxCatalog()
	aggregator := newTestAggregator(t, catalog, inventory)

	items := []SoldItem{
		{ID: "a", ProductID: "1", VariantID: "v1", Quantity: 1, Price: dec("40")},
		{ID: "b", ProductID: "3", VariantID: "v3", Quantity: 2, Price: dec("500")},
		{ID: "c", ProductID: "2", VariantID: "v2", Quantity: 5, Price: dec("20")},
	}
	reversed := []SoldItem{items[2], items[1], items[0]}

	forward, err := aggregator.Aggregate(context.Background(), items)
	require.NoError(t, err)
	backward, err := aggregator.Aggregate(context.Background(), reversed)
	require.NoError(t, err)

	byKey := func(result AggregationResult) map[string]string {
		out := make(map[string]string)
		for _, row := range result.Lines {
			out[row.Key] = fmt.Sprintf("%d@%s", row.Quantity, row.Total.StringFixed(2))
		}
		return out
	}
	assert.Equal(t, byKey(forward), byKey(backward))
	require.Len(t, forward.Lines, len(backward.Lines))
	assert.True(t, forward.GrandTotal.Equal(backward.GrandTotal), "%s != %s", forward.GrandTotal, backward.GrandTotal)
}

func TestLineItemAggregatorFailsWhole(t *testing.T) {
	boom := errors.New("shopify unavailable")
	catalog, inventory := boxCatalog()
	catalog.errs = map[string]error{"id:2": boom}
	aggregator := newTestAggregator(t, catalog, inventory)

	result, err := aggregator.Aggregate(context.Background(), []SoldItem{
		{ID: "a", ProductID: "1", VariantID: "v1", Quantity: 1, Price: dec("40")},
		{ID: "b", ProductID: "2", VariantID: "v2", Quantity: 1, Price: dec("20")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamFetch)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, result.Lines)
	assert.True(t, result.GrandTotal.IsZero())
}

func TestLineItemAggregatorEmptyOrder(t *testing.T) {
	catalog, inventory := boxCatalog()
	aggregator := newTestAggregator(t, catalog, inventory)

	result, err := aggregator.Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Lines)
	assert.True(t, result.GrandTotal.IsZero())
}

func TestRequestMetadataCacheCollapsesLookups(t *testing.T) {
	catalog, inventory := boxCatalog()
	cache := NewRequestMetadataCache(catalog)
	aggregator := newTestAggregator(t, cache, inventory)

	_, err := aggregator.Aggregate(context.Background(), []SoldItem{
		{ID: "a", ProductID: "3", VariantID: "v3", Quantity: 1, Price: dec("500")},
		{ID: "b", ProductID: "3", VariantID: "v3", Quantity: 1, Price: dec("500")},
		{ID: "c", ProductID: "2", VariantID: "v2", Quantity: 1, Price: dec("20")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.callCount("id:3"))
	assert.Equal(t, 1, catalog.callCount("id:2"))
	assert.Equal(t, 1, catalog.callCount("id:11"))
}

func TestRequestMetadataCacheDoesNotCacheErrors(t *testing.T) {
	catalog := &metadataStub{}
	cache := NewRequestMetadataCache(catalog)

	_, err := cache.Metadata(context.Background(), "404")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	_, err = cache.Metadata(context.Background(), "404")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Equal(t, 2, catalog.callCount("id:404"))
}
