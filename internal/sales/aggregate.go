// Package sales reduces the sale ledger into daily series and rankings.
package sales

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bakerypos/backend/internal/domain"
)

type LedgerReader interface {
	ReadAllSales(ctx context.Context) ([]domain.SaleRecord, error)
}

type Aggregator struct {
	ledger LedgerReader
}

func NewAggregator(ledger LedgerReader) *Aggregator {
	return &Aggregator{ledger: ledger}
}

// DailySeries returns one entry per calendar day between the first and last sale,
// zero-filled for days without sales. An empty ledger yields an empty series.
func (a *Aggregator) DailySeries(ctx context.Context) ([]domain.DailySales, error) {
	records, err := a.ledger.ReadAllSales(ctx)
	if err != nil {
		return nil, domain.AsPersistence("read all sales", err)
	}
	return Reindex(records), nil
}

// Reindex groups records by date and fills gaps between min and max date with zero.
func Reindex(records []domain.SaleRecord) []domain.DailySales {
	if len(records) == 0 {
		return []domain.DailySales{}
	}

	byDay := make(map[time.Time]int, len(records))
	first, last := dayOf(records[0].Date), dayOf(records[0].Date)
	for _, rec := range records {
		day := dayOf(rec.Date)
		byDay[day] += rec.Quantity
		if day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
	}

	series := make([]domain.DailySales, 0, int(last.Sub(first).Hours()/24)+1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		series = append(series, domain.DailySales{Date: day, TotalQuantity: byDay[day]})
	}
	return series
}

// TotalRevenue sums line totals across the ledger.
func TotalRevenue(records []domain.SaleRecord) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.LineTotal)
	}
	return total
}

// TopItem ranks items by summed quantity; ties go to the lexically smaller name.
func TopItem(records []domain.SaleRecord) (domain.TopSeller, bool) {
	return topBy(records, func(rec domain.SaleRecord) string { return rec.Item })
}

func TopFlavour(records []domain.SaleRecord) (domain.TopSeller, bool) {
	return topBy(records, func(rec domain.SaleRecord) string { return rec.Flavour })
}

func topBy(records []domain.SaleRecord, key func(domain.SaleRecord) string) (domain.TopSeller, bool) {
	if len(records) == 0 {
		return domain.TopSeller{}, false
	}
	totals := make(map[string]int)
	for _, rec := range records {
		totals[key(rec)] += rec.Quantity
	}

	ranked := make([]domain.TopSeller, 0, len(totals))
	for name, qty := range totals {
		ranked = append(ranked, domain.TopSeller{Name: name, TotalQuantity: qty})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalQuantity != ranked[j].TotalQuantity {
			return ranked[i].TotalQuantity > ranked[j].TotalQuantity
		}
		return ranked[i].Name < ranked[j].Name
	})
	return ranked[0], true
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
