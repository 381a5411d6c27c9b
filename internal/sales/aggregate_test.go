package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerypos/backend/internal/domain"
)

type ledgerStub struct {
	records []domain.SaleRecord
	err     error
}

func (l ledgerStub) ReadAllSales(context.Context) ([]domain.SaleRecord, error) {
	return l.records, l.err
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sale(item, flavour string, qty int, total int64, date string) domain.SaleRecord {
	return domain.SaleRecord{Item: item, Flavour: flavour, Quantity: qty, LineTotal: decimal.NewFromInt(total), Date: day(date)}
}

func TestDailySeriesFillsMissingDays(t *testing.T) {
	agg := NewAggregator(ledgerStub{records: []domain.SaleRecord{
		sale("Cake", "Chocolate", 8, 4000, "2024-01-03"),
		sale("Cake", "Chocolate", 2, 1000, "2024-01-01"),
		sale("Pastry", "Vanilla", 3, 600, "2024-01-01"),
	}})

	series, err := agg.DailySeries(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []domain.DailySales{
		{Date: day("2024-01-01"), TotalQuantity: 5},
		{Date: day("2024-01-02"), TotalQuantity: 0},
		{Date: day("2024-01-03"), TotalQuantity: 8},
	}, series)
}

func TestDailySeriesEmptyLedger(t *testing.T) {
	series, err := NewAggregator(ledgerStub{}).DailySeries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestDailySeriesWrapsLedgerFailure(t *testing.T) {
	_, err := NewAggregator(ledgerStub{err: errors.New("db down")}).DailySeries(context.Background())
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestReindexIsContiguous(t *testing.T) {
	series := Reindex([]domain.SaleRecord{
		sale("Cake", "Chocolate", 1, 500, "2024-02-27"),
		sale("Cake", "Chocolate", 1, 500, "2024-03-02"),
	})
	require.Len(t, series, 5)
	for i := 1; i < len(series); i++ {
		assert.Equal(t, series[i-1].Date.AddDate(0, 0, 1), series[i].Date)
	}
}

func TestTopSellersAndRevenue(t *testing.T) {
	records := []domain.SaleRecord{
		sale("Cake", "Chocolate", 3, 1500, "2024-01-01"),
		sale("Pastry", "Chocolate", 4, 800, "2024-01-01"),
		sale("Cake", "Vanilla", 2, 900, "2024-01-02"),
	}

	item, ok := TopItem(records)
	require.True(t, ok)
	assert.Equal(t, domain.TopSeller{Name: "Cake", TotalQuantity: 5}, item)

	flavour, ok := TopFlavour(records)
	require.True(t, ok)
	assert.Equal(t, domain.TopSeller{Name: "Chocolate", TotalQuantity: 7}, flavour)

	assert.True(t, decimal.NewFromInt(3200).Equal(TotalRevenue(records)))

	_, ok = TopItem(nil)
	assert.False(t, ok)
	assert.True(t, TotalRevenue(nil).IsZero())
}

func TestTopItemTieBreaksByName(t *testing.T) {
	item, ok := TopItem([]domain.SaleRecord{
		sale("Pastry", "Vanilla", 2, 400, "2024-01-01"),
		sale("Cake", "Vanilla", 2, 1000, "2024-01-01"),
	})
	require.True(t, ok)
	assert.Equal(t, "Cake", item.Name)
}
