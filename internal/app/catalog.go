package app

import (
	"fmt"
	"slices"

	"github.com/vtruhin/StockFlux/internal/domain"
)

// sourcePeriods lists the periods offered per source kind, default first.
var sourcePeriods = map[string][]domain.Period{
	"binance":   {domain.PeriodDay1, domain.PeriodWeek1, domain.PeriodHour1, domain.PeriodMinute5, domain.PeriodMinute1},
	"coinbase":  {domain.PeriodDay1, domain.PeriodHour1, domain.PeriodMinute5, domain.PeriodMinute1},
	"archive":   {domain.PeriodDay1, domain.PeriodWeek1},
	"generated": {domain.PeriodDay1},
}

// Products builds the product list for a source kind. Duplicate and empty IDs are skipped.
func Products(source string, ids ...string) ([]domain.Product, error) {
	periods, ok := sourcePeriods[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	products := make([]domain.Product, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		products = append(products, domain.Product{
			ID:      id,
			Name:    id,
			Source:  source,
			Periods: slices.Clone(periods),
		})
	}
	return products, nil
}
