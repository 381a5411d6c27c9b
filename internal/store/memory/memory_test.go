package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bakerypos/backend/internal/domain"
)

func TestNewSeededCatalog(t *testing.T) {
	t.Setenv("SEED_EMPLOYEE_PASSWORD", "seed-secret")
	s := NewSeeded()
	ctx := context.Background()

	names, err := s.DistinctItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cake", "Cookie", "Cupcake", "Pastry"}, names)

	cakes, err := s.FlavoursFor(ctx, "Cake")
	require.NoError(t, err)
	require.Len(t, cakes, 3)
	assert.Equal(t, "Chocolate", cakes[0].Flavour)

	none, err := s.FlavoursFor(ctx, "Bread")
	require.NoError(t, err)
	assert.Empty(t, none)

	account, err := s.GetEmployee(ctx, 1001)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("seed-secret")))
}

func TestGetItemNotFound(t *testing.T) {
	_, err := New().GetItem(context.Background(), "Cake", "Lemon")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTxCommitAppliesStagedWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutItem(domain.InventoryItem{Item: "Cake", Flavour: "Chocolate", UnitPrice: decimal.NewFromInt(500), Stock: 10}))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.WriteStock(ctx, "Cake", "Chocolate", 4))
	qty, err := tx.ReadStock(ctx, "Cake", "Chocolate")
	require.NoError(t, err)
	assert.Equal(t, 4, qty)

	first, err := tx.AppendBillLine(ctx, domain.BillLine{Item: "Cake", Flavour: "Chocolate", Quantity: 6})
	require.NoError(t, err)
	second, err := tx.AppendBillLine(ctx, domain.BillLine{Item: "Cake", Flavour: "Chocolate", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Serial)
	assert.Equal(t, int64(2), second.Serial)
	require.NoError(t, tx.AppendSale(ctx, domain.SaleRecord{Item: "Cake", Flavour: "Chocolate", Quantity: 6}))
	require.NoError(t, tx.Commit())
	assert.Error(t, tx.Commit())

	item, err := s.GetItem(ctx, "Cake", "Chocolate")
	require.NoError(t, err)
	assert.Equal(t, 4, item.Stock)
	sales, _ := s.ReadAllSales(ctx)
	assert.Len(t, sales, 1)
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutItem(domain.InventoryItem{Item: "Cake", Flavour: "Chocolate", UnitPrice: decimal.NewFromInt(500), Stock: 10}))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.WriteStock(ctx, "Cake", "Chocolate", 0))
	_, err = tx.AppendBillLine(ctx, domain.BillLine{Item: "Cake", Flavour: "Chocolate", Quantity: 10})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	item, _ := s.GetItem(ctx, "Cake", "Chocolate")
	assert.Equal(t, 10, item.Stock)
	bill, _ := s.LatestBillLines(ctx, 15)
	assert.Empty(t, bill)

	// serials are not consumed by a rolled back transaction
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	line, err := tx.AppendBillLine(ctx, domain.BillLine{Item: "Cake", Flavour: "Chocolate", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), line.Serial)
	require.NoError(t, tx.Rollback())
}

func TestTxWriteStockRejectsNegativeAndUnknown(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutItem(domain.InventoryItem{Item: "Cake", Flavour: "Chocolate", UnitPrice: decimal.NewFromInt(500), Stock: 1}))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	assert.Error(t, tx.WriteStock(ctx, "Cake", "Chocolate", -1))
	assert.ErrorIs(t, tx.WriteStock(ctx, "Cake", "Lemon", 3), domain.ErrNotFound)
	_, err = tx.ReadStock(ctx, "Cake", "Lemon")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLatestBillLinesKeepsTail(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for i := 1; i <= 20; i++ {
		_, err := tx.AppendBillLine(ctx, domain.BillLine{Item: "Cookie", Flavour: "Butterscotch", Quantity: i})
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	lines, err := s.LatestBillLines(ctx, 15)
	require.NoError(t, err)
	require.Len(t, lines, 15)
	assert.Equal(t, int64(6), lines[0].Serial)
	assert.Equal(t, int64(20), lines[14].Serial)
}

func TestTopSellersReduceLedger(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, ok, err := s.TopItemByQuantity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, rec := range []domain.SaleRecord{
		{Item: "Cake", Flavour: "Chocolate", Quantity: 2, Date: day},
		{Item: "Pastry", Flavour: "Chocolate", Quantity: 3, Date: day},
		{Item: "Cake", Flavour: "Vanilla", Quantity: 4, Date: day},
	} {
		require.NoError(t, tx.AppendSale(ctx, rec))
	}
	require.NoError(t, tx.Commit())

	item, ok, err := s.TopItemByQuantity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TopSeller{Name: "Cake", TotalQuantity: 6}, item)

	flavour, ok, err := s.TopFlavourByQuantity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TopSeller{Name: "Chocolate", TotalQuantity: 5}, flavour)
}

func TestBeginHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
