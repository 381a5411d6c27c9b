package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerypos/backend/internal/cart"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/store"
	"bakerypos/backend/internal/store/memory"
)

var fixedNow = time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)

func newStore(t *testing.T, items ...domain.InventoryItem) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, item := range items {
		require.NoError(t, s.PutItem(item))
	}
	return s
}

func chocolateCake(stock int) domain.InventoryItem {
	return domain.InventoryItem{Item: "Cake", Flavour: "Chocolate", UnitPrice: decimal.NewFromInt(500), Stock: stock}
}

func cartWith(t *testing.T, s *memory.Store, lines ...domain.CartLine) *cart.Cart {
	t.Helper()
	c := cart.New()
	for _, line := range lines {
		snap, err := s.GetItem(context.Background(), line.Item, line.Flavour)
		require.NoError(t, err)
		_, err = c.AddLine(line.Item, line.Flavour, line.Quantity, *snap)
		require.NoError(t, err)
	}
	return c
}

func stockOf(t *testing.T, s *memory.Store, item, flavour string) int {
	t.Helper()
	got, err := s.GetItem(context.Background(), item, flavour)
	require.NoError(t, err)
	return got.Stock
}

func TestCheckoutCommitsStockSaleAndBill(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, chocolateCake(10))
	engine := NewEngine(s, WithClock(func() time.Time { return fixedNow }))
	c := cartWith(t, s, domain.CartLine{Item: "Cake", Flavour: "Chocolate", Quantity: 3})

	receipt, err := engine.Checkout(ctx, c)
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(1500).Equal(receipt.GrandTotal))
	assert.Equal(t, 7, stockOf(t, s, "Cake", "Chocolate"))
	assert.True(t, c.IsEmpty())
	assert.Equal(t, cart.StateCheckedOut, c.State())

	sales, err := s.ReadAllSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "Cake", sales[0].Item)
	assert.Equal(t, "Chocolate", sales[0].Flavour)
	assert.Equal(t, 3, sales[0].Quantity)
	assert.True(t, decimal.NewFromInt(1500).Equal(sales[0].LineTotal))
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), sales[0].Date)

	bill, err := s.LatestBillLines(ctx, 15)
	require.NoError(t, err)
	require.Len(t, bill, 1)
	assert.Equal(t, int64(1), bill[0].Serial)
	assert.Equal(t, 3, bill[0].Quantity)
	assert.True(t, decimal.NewFromInt(1500).Equal(bill[0].LineTotal))
	assert.Equal(t, bill, receipt.Lines)
}

func TestCheckoutRejectsShortfallWithoutMutation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, chocolateCake(10))
	engine := NewEngine(s)
	c := cartWith(t, s, domain.CartLine{Item: "Cake", Flavour: "Chocolate", Quantity: 3})

	// stock drops after the line was added
	require.NoError(t, s.PutItem(chocolateCake(2)))

	_, err := engine.Checkout(ctx, c)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Len(t, stockErr.Shortfalls, 1)
	assert.Equal(t, domain.StockShortfall{LineIndex: 0, Item: "Cake", Flavour: "Chocolate", Requested: 3, RequestedTotal: 3, Available: 2}, stockErr.Shortfalls[0])

	assert.Equal(t, 2, stockOf(t, s, "Cake", "Chocolate"))
	sales, _ := s.ReadAllSales(ctx)
	assert.Empty(t, sales)
	bill, _ := s.LatestBillLines(ctx, 15)
	assert.Empty(t, bill)
	assert.Equal(t, 1, c.Len(), "cart is kept for the caller to amend")
}

func TestCheckoutAllOrNothingAcrossLines(t *testing.T) {
	ctx := context.Background()
	vanilla := domain.InventoryItem{Item: "Cake", Flavour: "Vanilla", UnitPrice: decimal.NewFromInt(450), Stock: 5}
	s := newStore(t, chocolateCake(10), vanilla)
	c := cartWith(t, s,
		domain.CartLine{Item: "Cake", Flavour: "Chocolate", Quantity: 2},
		domain.CartLine{Item: "Cake", Flavour: "Vanilla", Quantity: 4},
	)
	vanilla.Stock = 1
	require.NoError(t, s.PutItem(vanilla))

	_, err := NewEngine(s).Checkout(ctx, c)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 10, stockOf(t, s, "Cake", "Chocolate"))
	assert.Equal(t, 1, stockOf(t, s, "Cake", "Vanilla"))
}

func TestCheckoutSumsDuplicateLines(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, chocolateCake(5))
	c := cartWith(t, s,
		domain.CartLine{Item: "Cake", Flavour: "Chocolate", Quantity: 3},
		domain.CartLine{Item: "Cake", Flavour: "Chocolate", Quantity: 3},
	)

	_, err := NewEngine(s).Checkout(ctx, c)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 5, stockOf(t, s, "Cake", "Chocolate"))

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Len(t, stockErr.Shortfalls, 2)
	for i, shortfall := range stockErr.Shortfalls {
		assert.Equal(t, i, shortfall.LineIndex)
		assert.Equal(t, 3, shortfall.Requested)
		assert.Equal(t, 6, shortfall.RequestedTotal)
		assert.Equal(t, 5, shortfall.Available)
	}
	assert.Contains(t, err.Error(), "requested 3 (6 across cart), available 5")

	c = cartWith(t, s,
		domain.CartLine{Item: "Cake", Flavour: "Chocolate", Quantity: 2},
		domain.CartLine{Item: "Cake", Flavour: "Chocolate", Quantity: 3},
	)
	receipt, err := NewEngine(s).Checkout(ctx, c)
	require.NoError(t, err)
	assert.Len(t, receipt.Lines, 2)
	assert.Equal(t, 0, stockOf(t, s, "Cake", "Chocolate"))
}

func TestCheckoutEmptyCart(t *testing.T) {
	_, err := NewEngine(memory.New()).Checkout(context.Background(), cart.New())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCheckoutUnknownItem(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, chocolateCake(10))
	c := cart.New()
	_, err := c.AddLine("Bread", "Garlic", 1, domain.InventoryItem{Item: "Bread", Flavour: "Garlic", UnitPrice: decimal.NewFromInt(40), Stock: 3})
	require.NoError(t, err)

	_, err = NewEngine(s).Checkout(ctx, c)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 10, stockOf(t, s, "Cake", "Chocolate"))
}

func TestCheckoutRollsBackOnPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, chocolateCake(10))
	c := cartWith(t, s, domain.CartLine{Item: "Cake", Flavour: "Chocolate", Quantity: 3})
	failing := &failingLedger{Ledger: s, failBill: errors.New("disk full")}

	_, err := NewEngine(failing).Checkout(ctx, c)
	require.ErrorIs(t, err, domain.ErrPersistence)

	var persistErr *domain.PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, "append bill line", persistErr.Op)
	assert.True(t, failing.rolledBack)

	assert.Equal(t, 10, stockOf(t, s, "Cake", "Chocolate"))
	sales, _ := s.ReadAllSales(ctx)
	assert.Empty(t, sales)
	assert.Equal(t, 1, c.Len())
}

func TestCheckoutBeginFailure(t *testing.T) {
	s := newStore(t, chocolateCake(10))
	c := cartWith(t, s, domain.CartLine{Item: "Cake", Flavour: "Chocolate", Quantity: 1})
	failing := &failingLedger{Ledger: s, failBegin: errors.New("connection refused")}

	_, err := NewEngine(failing).Checkout(context.Background(), c)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestConcurrentCheckoutsNeverOverDeduct(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, chocolateCake(10))
	engine := NewEngine(s)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := cart.New()
			if _, err := c.AddLine("Cake", "Chocolate", 3, chocolateCake(10)); err != nil {
				return
			}
			if _, err := engine.Checkout(ctx, c); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 1, stockOf(t, s, "Cake", "Chocolate"))
}

type failingLedger struct {
	store.Ledger
	failBegin  error
	failBill   error
	rolledBack bool
}

func (f *failingLedger) Begin(ctx context.Context) (store.Tx, error) {
	if f.failBegin != nil {
		return nil, f.failBegin
	}
	tx, err := f.Ledger.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, parent: f}, nil
}

type failingTx struct {
	store.Tx
	parent *failingLedger
}

func (t *failingTx) AppendBillLine(ctx context.Context, entry domain.BillLine) (domain.BillLine, error) {
	if t.parent.failBill != nil {
		return domain.BillLine{}, t.parent.failBill
	}
	return t.Tx.AppendBillLine(ctx, entry)
}

func (t *failingTx) Rollback() error {
	t.parent.rolledBack = true
	return t.Tx.Rollback()
}
