package shopify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

const orderQuery = `query OrderForFulfillment($id: ID!) {
	order(id: $id) {
		id
		name
		createdAt
		currencyCode
		email
		note
		totalWeight
		shippingAddress {
			name company address1 address2 city province provinceCode zip country countryCodeV2 phone
		}
		lineItems(first: 250) {
			nodes {
				id
				title
				sku
				quantity
				product { id }
				variant { id }
				originalUnitPriceSet { shopMoney { amount } }
				customAttributes { key value }
			}
		}
	}
}`

// Order loads the order snapshot documents and shipments are produced from.
func (c *Client) Order(ctx context.Context, orderID string) (domain.Order, error) {
	data, err := c.query(ctx, "OrderForFulfillment", orderQuery, map[string]any{
		"id": gid("Order", orderID),
	})
	if err != nil {
		return domain.Order{}, err
	}
	node := data.Get("order")
	if !node.IsObject() {
		return domain.Order{}, fmt.Errorf("%w: order %s: %w", ErrNotFound, orderID, domain.ErrOrderNotFound)
	}
	return decodeOrder(node)
}

func decodeOrder(node gjson.Result) (domain.Order, error) {
	order := domain.Order{
		ID:               legacyID(node.Get("id").String()),
		Name:             node.Get("name").String(),
		Currency:         node.Get("currencyCode").String(),
		Email:            node.Get("email").String(),
		Note:             node.Get("note").String(),
		TotalWeightGrams: int(node.Get("totalWeight").Int()),
	}
	if created := node.Get("createdAt").String(); created != "" {
		ts, err := time.Parse(time.RFC3339, created)
		if err != nil {
			return domain.Order{}, fmt.Errorf("shopify: order %s: invalid createdAt %q: %w", order.ID, created, err)
		}
		order.CreatedAt = ts.UTC()
	}

	address := node.Get("shippingAddress")
	order.ShippingAddress = domain.Address{
		Name:         address.Get("name").String(),
		Company:      address.Get("company").String(),
		Address1:     address.Get("address1").String(),
		Address2:     address.Get("address2").String(),
		City:         address.Get("city").String(),
		Province:     address.Get("province").String(),
		ProvinceCode: address.Get("provinceCode").String(),
		Zip:          address.Get("zip").String(),
		Country:      address.Get("country").String(),
		CountryCode:  address.Get("countryCodeV2").String(),
		Phone:        address.Get("phone").String(),
		Email:        order.Email,
	}

	for _, line := range node.Get("lineItems.nodes").Array() {
		item := domain.SoldItem{
			ID:        legacyID(line.Get("id").String()),
			ProductID: legacyID(line.Get("product.id").String()),
			VariantID: legacyID(line.Get("variant.id").String()),
			SKU:       strings.TrimSpace(line.Get("sku").String()),
			Title:     line.Get("title").String(),
			Quantity:  int(line.Get("quantity").Int()),
			Price:     decimal.Zero,
		}
		if raw := line.Get("originalUnitPriceSet.shopMoney.amount").String(); raw != "" {
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return domain.Order{}, fmt.Errorf("shopify: line item %s: invalid price %q: %w", item.ID, raw, err)
			}
			item.Price = price
		}
		for _, attr := range line.Get("customAttributes").Array() {
			item.Properties = append(item.Properties, domain.Property{
				Name:  attr.Get("key").String(),
				Value: attr.Get("value").String(),
			})
		}
		order.LineItems = append(order.LineItems, item)
	}
	return order, nil
}
