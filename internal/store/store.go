package store

import (
	"context"
	"time"

	"bakerypos/backend/internal/domain"
)

// Catalog is the read-only view of the inventory used for browsing and cart snapshots.
type Catalog interface {
	ListItems(ctx context.Context) ([]domain.InventoryItem, error)
	DistinctItems(ctx context.Context) ([]string, error)
	FlavoursFor(ctx context.Context, item string) ([]domain.InventoryItem, error)
	GetItem(ctx context.Context, item string, flavour string) (*domain.InventoryItem, error)
}

// Tx is an explicit transaction boundary over stock and the ledgers.
// ReadStock locks the row until Commit or Rollback.
type Tx interface {
	ReadStock(ctx context.Context, item string, flavour string) (int, error)
	WriteStock(ctx context.Context, item string, flavour string, newValue int) error
	AppendSale(ctx context.Context, record domain.SaleRecord) error
	AppendBillLine(ctx context.Context, entry domain.BillLine) (domain.BillLine, error)
	Commit() error
	Rollback() error
}

type Ledger interface {
	Begin(ctx context.Context) (Tx, error)
	ReadAllSales(ctx context.Context) ([]domain.SaleRecord, error)
	LatestBillLines(ctx context.Context, limit int) ([]domain.BillLine, error)
}

// TopSellers answers the "most sold" questions; ok is false when the ledger is empty.
type TopSellers interface {
	TopItemByQuantity(ctx context.Context) (seller domain.TopSeller, ok bool, err error)
	TopFlavourByQuantity(ctx context.Context) (seller domain.TopSeller, ok bool, err error)
}

type FeedbackStore interface {
	CreateFeedback(ctx context.Context, text string, at time.Time) (*domain.Feedback, error)
}

type EmployeeStore interface {
	GetEmployee(ctx context.Context, id int) (*domain.EmployeeAccount, error)
}

type Repository interface {
	Catalog
	Ledger
	TopSellers
	FeedbackStore
	EmployeeStore
}
