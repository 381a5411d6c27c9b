// Package checkout commits a cart against live stock inside one transaction.
package checkout

import (
	"context"
	"sort"
	"time"

	"bakerypos/backend/internal/cart"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/store"
)

type Engine struct {
	ledger   store.Ledger
	location *time.Location
	now      func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone whose calendar day stamps sale records.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

func NewEngine(ledger store.Ledger, opts ...Option) *Engine {
	e := &Engine{ledger: ledger, location: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Checkout validates every line against live stock, then decrements stock and
// appends one sale and one bill line per cart line. Any failure rolls back the
// whole transaction. On success the cart is cleared.
func (e *Engine) Checkout(ctx context.Context, c *cart.Cart) (domain.Receipt, error) {
	if c == nil || c.IsEmpty() {
		return domain.Receipt{}, domain.NewValidationError("cart", "cart is empty")
	}
	lines := c.Lines()

	receipt, err := e.commit(ctx, lines)
	if err != nil {
		return domain.Receipt{}, err
	}
	c.MarkCheckedOut()
	return receipt, nil
}

func (e *Engine) commit(ctx context.Context, lines []domain.CartLine) (receipt domain.Receipt, err error) {
	tx, err := e.ledger.Begin(ctx)
	if err != nil {
		return domain.Receipt{}, domain.AsPersistence("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	requested := make(map[domain.StockKey]int, len(lines))
	for _, line := range lines {
		requested[line.Key()] += line.Quantity
	}

	keys := make([]domain.StockKey, 0, len(requested))
	for key := range requested {
		keys = append(keys, key)
	}
	// A fixed lock order keeps concurrent checkouts from deadlocking on row locks.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Item != keys[j].Item {
			return keys[i].Item < keys[j].Item
		}
		return keys[i].Flavour < keys[j].Flavour
	})

	live := make(map[domain.StockKey]int, len(keys))
	for _, key := range keys {
		qty, err := tx.ReadStock(ctx, key.Item, key.Flavour)
		if err != nil {
			return domain.Receipt{}, domain.AsPersistence("read stock", err)
		}
		live[key] = qty
	}

	var shortfalls []domain.StockShortfall
	for i, line := range lines {
		key := line.Key()
		if requested[key] > live[key] {
			shortfalls = append(shortfalls, domain.StockShortfall{
				LineIndex:      i,
				Item:           line.Item,
				Flavour:        line.Flavour,
				Requested:      line.Quantity,
				RequestedTotal: requested[key],
				Available:      live[key],
			})
		}
	}
	if len(shortfalls) > 0 {
		return domain.Receipt{}, &domain.InsufficientStockError{Shortfalls: shortfalls}
	}

	for _, key := range keys {
		if err := tx.WriteStock(ctx, key.Item, key.Flavour, live[key]-requested[key]); err != nil {
			return domain.Receipt{}, domain.AsPersistence("write stock", err)
		}
	}

	today := domain.DateOf(e.now(), e.location)
	billLines := make([]domain.BillLine, 0, len(lines))
	for _, line := range lines {
		err := tx.AppendSale(ctx, domain.SaleRecord{
			Item:      line.Item,
			Flavour:   line.Flavour,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal,
			Date:      today,
		})
		if err != nil {
			return domain.Receipt{}, domain.AsPersistence("append sale", err)
		}
		bill, err := tx.AppendBillLine(ctx, domain.BillLine{
			Item:      line.Item,
			Flavour:   line.Flavour,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal,
		})
		if err != nil {
			return domain.Receipt{}, domain.AsPersistence("append bill line", err)
		}
		billLines = append(billLines, bill)
	}

	if err := tx.Commit(); err != nil {
		return domain.Receipt{}, domain.AsPersistence("commit", err)
	}
	committed = true

	return domain.Receipt{
		GrandTotal: cart.GrandTotal(lines),
		Date:       today,
		Lines:      billLines,
	}, nil
}
