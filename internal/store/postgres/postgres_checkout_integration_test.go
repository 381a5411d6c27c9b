package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"bakerypos/backend/internal/cart"
	"bakerypos/backend/internal/checkout"
	"bakerypos/backend/internal/domain"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func TestCheckoutDecrementsStockAndAppendsLedger(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	item := fmt.Sprintf("Cake-IT-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE item = $1`, item)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bill WHERE item = $1`, item)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory WHERE item = $1`, item)
	})

	if err := s.UpsertItem(ctx, domain.InventoryItem{Item: item, Flavour: "Chocolate", UnitPrice: decimal.NewFromInt(500), Stock: 10}); err != nil {
		t.Fatalf("upsert item: %v", err)
	}

	snapshot, err := s.GetItem(ctx, item, "Chocolate")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	c := cart.New()
	if _, err := c.AddLine(item, "Chocolate", 3, *snapshot); err != nil {
		t.Fatalf("add line: %v", err)
	}

	receipt, err := checkout.NewEngine(s).Checkout(ctx, c)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !receipt.GrandTotal.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected grand total 1500, got %s", receipt.GrandTotal)
	}
	if len(receipt.Lines) != 1 || receipt.Lines[0].Serial == 0 {
		t.Fatalf("expected one bill line with a serial, got %+v", receipt.Lines)
	}

	after, err := s.GetItem(ctx, item, "Chocolate")
	if err != nil {
		t.Fatalf("get item after checkout: %v", err)
	}
	if after.Stock != 7 {
		t.Fatalf("expected stock 7 after checkout, got %d", after.Stock)
	}

	var saleCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales WHERE item = $1`, item).Scan(&saleCount); err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if saleCount != 1 {
		t.Fatalf("expected 1 sale row, got %d", saleCount)
	}

	// stock drops below the cart's quantity: nothing may change
	if err := s.UpsertItem(ctx, domain.InventoryItem{Item: item, Flavour: "Chocolate", UnitPrice: decimal.NewFromInt(500), Stock: 2}); err != nil {
		t.Fatalf("reset stock: %v", err)
	}
	retry := cart.New()
	if _, err := retry.AddLine(item, "Chocolate", 3, *snapshot); err != nil {
		t.Fatalf("add line: %v", err)
	}
	_, err = checkout.NewEngine(s).Checkout(ctx, retry)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	after, err = s.GetItem(ctx, item, "Chocolate")
	if err != nil {
		t.Fatalf("get item after rejected checkout: %v", err)
	}
	if after.Stock != 2 {
		t.Fatalf("expected stock to stay 2, got %d", after.Stock)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales WHERE item = $1`, item).Scan(&saleCount); err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if saleCount != 1 {
		t.Fatalf("expected no new sale rows, got %d", saleCount)
	}
}

func TestGetItemMissingIsNotFound(t *testing.T) {
	s := newIntegrationStore(t)
	_, err := s.GetItem(context.Background(), "no-such-item", "none")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(errors.New("plain")) {
		t.Fatalf("plain error must not be a unique violation")
	}
	wrapped := fmt.Errorf("insert employee: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(wrapped) {
		t.Fatalf("expected wrapped 23505 to be a unique violation")
	}
}
