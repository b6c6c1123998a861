package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/brc-ops/backoffice/internal/domain"
	pfirestore "github.com/brc-ops/backoffice/internal/platform/firestore"
	"github.com/brc-ops/backoffice/internal/repositories"
)

const skuMapsCollection = "skuMaps"

type skuComponentDocument struct {
	SKU      string `firestore:"sku"`
	Quantity int    `firestore:"quantity"`
}

type skuMapDocument struct {
	SKU        string                 `firestore:"sku"`
	Components []skuComponentDocument `firestore:"components"`
	UpdatedAt  time.Time              `firestore:"updatedAt"`
}

// SKUMapRepository stores one document per storefront SKU.
type SKUMapRepository struct {
	maps *pfirestore.Collection[skuMapDocument]
	now  func() time.Time
}

var _ repositories.SKUMapRepository = (*SKUMapRepository)(nil)

// NewSKUMapRepository constructs a Firestore-backed SKU map repository.
func NewSKUMapRepository(provider *pfirestore.Provider) (*SKUMapRepository, error) {
	if provider == nil {
		return nil, errors.New("sku map repository requires firestore provider")
	}
	return &SKUMapRepository{
		maps: pfirestore.NewCollection[skuMapDocument](provider, skuMapsCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SKUMapRepository) Get(ctx context.Context, sku string) (domain.SKUMap, error) {
	doc, err := r.maps.Get(ctx, skuKey(sku))
	if err != nil {
		return domain.SKUMap{}, err
	}
	return decodeSKUMap(doc.Data), nil
}

// List returns every mapping ordered by SKU.
func (r *SKUMapRepository) List(ctx context.Context) ([]domain.SKUMap, error) {
	docs, err := r.maps.List(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("sku", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.SKUMap, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeSKUMap(doc.Data))
	}
	return out, nil
}

func (r *SKUMapRepository) Put(ctx context.Context, mapping domain.SKUMap) (domain.SKUMap, error) {
	mapping.UpdatedAt = r.now()
	doc := skuMapDocument{SKU: mapping.SKU, UpdatedAt: mapping.UpdatedAt}
	for _, component := range mapping.Components {
		doc.Components = append(doc.Components, skuComponentDocument{SKU: component.SKU, Quantity: component.Quantity})
	}
	if _, err := r.maps.Set(ctx, skuKey(mapping.SKU), doc); err != nil {
		return domain.SKUMap{}, err
	}
	return mapping, nil
}

func (r *SKUMapRepository) Delete(ctx context.Context, sku string) error {
	return r.maps.Delete(ctx, skuKey(sku))
}

func skuKey(sku string) string {
	return strings.ReplaceAll(strings.TrimSpace(sku), "/", "_")
}

func decodeSKUMap(doc skuMapDocument) domain.SKUMap {
	mapping := domain.SKUMap{SKU: doc.SKU, UpdatedAt: doc.UpdatedAt}
	for _, component := range doc.Components {
		mapping.Components = append(mapping.Components, domain.SKUComponent{SKU: component.SKU, Quantity: component.Quantity})
	}
	return mapping
}
