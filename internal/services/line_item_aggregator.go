package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

// LineItemAggregatorDeps wires the aggregator.
type LineItemAggregatorDeps struct {
	Expander             ComponentExpander
	CountryOfManufacture string
	// Concurrency bounds the number of items expanded at once. Zero means unbounded.
	Concurrency int
}

type lineItemAggregator struct {
	expander    ComponentExpander
	country     string
	concurrency int
}

// NewLineItemAggregator constructs a LineItemAggregator.
func NewLineItemAggregator(deps LineItemAggregatorDeps) (LineItemAggregator, error) {
	if deps.Expander == nil {
		return nil, errors.New("line item aggregator: expander is required")
	}
	country := strings.ToUpper(strings.TrimSpace(deps.CountryOfManufacture))
	if country == "" {
		country = domain.DefaultCountryOfManufacture
	}
	return &lineItemAggregator{
		expander:    deps.Expander,
		country:     country,
		concurrency: deps.Concurrency,
	}, nil
}

func (a *lineItemAggregator) Aggregate(ctx context.Context, items []SoldItem) (AggregationResult, error) {
	expanded, err := ExpandAll(ctx, a.expander, items, a.concurrency)
	if err != nil {
		return AggregationResult{}, err
	}
	return MergeExpandedLines(expanded, a.country), nil
}

// ExpandAll expands items concurrently and returns the lines in input order. The first
// failure cancels the remaining expansions.
func ExpandAll(ctx context.Context, expander ComponentExpander, items []SoldItem, limit int) ([]ExpandedLine, error) {
	lines := make([]ExpandedLine, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			line, err := expander.Expand(gctx, item)
			if err != nil {
				return err
			}
			lines[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lines, nil
}

// MergeExpandedLines flattens expanded lines into customs rows merged by name and HS code.
// Rows keep first-seen order; a merged row keeps the unit price of its first entry.
func MergeExpandedLines(lines []ExpandedLine, country string) AggregationResult {
	result := AggregationResult{GrandTotal: decimal.Zero}
	index := make(map[string]int)

	add := func(name, hsCode string, quantity int, unitPrice decimal.Decimal, origin string) {
		if origin == "" {
			origin = country
		}
		total := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
		key := domain.AggregationKey(name, hsCode)
		if pos, ok := index[key]; ok {
			row := &result.Lines[pos]
			row.Quantity += quantity
			row.Total = row.Total.Add(total)
			return
		}
		index[key] = len(result.Lines)
		result.Lines = append(result.Lines, domain.AggregatedLineItem{
			Key:                  key,
			Name:                 name,
			HSCode:               hsCode,
			Quantity:             quantity,
			UnitPrice:            unitPrice,
			Total:                total,
			CountryOfManufacture: origin,
		})
	}

	for _, line := range lines {
		if !line.HasComponents() {
			add(line.Name, line.HSCode, line.Item.Quantity, CustomsUnitPrice(line.Item.Price), country)
			continue
		}
		for _, component := range line.Components {
			add(component.Name, component.HSCode, component.Quantity, component.UnitPrice, component.CountryOfManufacture)
		}
	}

	for _, row := range result.Lines {
		result.GrandTotal = result.GrandTotal.Add(row.Total)
	}
	return result
}
