package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/sales"
	"bakerypos/backend/internal/store"
)

var errTxDone = errors.New("transaction already finished")

type Store struct {
	mu         sync.RWMutex
	inventory  map[domain.StockKey]domain.InventoryItem
	sales      []domain.SaleRecord
	bill       []domain.BillLine
	nextSerial int64
	feedback   []domain.Feedback
	employees  map[int]domain.EmployeeAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		inventory:  make(map[domain.StockKey]domain.InventoryItem),
		sales:      make([]domain.SaleRecord, 0, 64),
		bill:       make([]domain.BillLine, 0, 64),
		nextSerial: 1,
		feedback:   make([]domain.Feedback, 0, 16),
		employees:  make(map[int]domain.EmployeeAccount),
	}
}

// NewSeeded builds a store with the shop's default menu and one employee for
// dev/demo mode. The employee password is read from SEED_EMPLOYEE_PASSWORD; if
// unset a dev default is used with a warning.
func NewSeeded() *Store {
	s := New()
	for _, item := range []domain.InventoryItem{
		{Item: "Cake", Flavour: "Chocolate", UnitPrice: decimal.NewFromInt(500), Stock: 10},
		{Item: "Cake", Flavour: "Vanilla", UnitPrice: decimal.NewFromInt(450), Stock: 12},
		{Item: "Cake", Flavour: "Red Velvet", UnitPrice: decimal.NewFromInt(650), Stock: 6},
		{Item: "Pastry", Flavour: "Chocolate", UnitPrice: decimal.NewFromInt(90), Stock: 40},
		{Item: "Pastry", Flavour: "Pineapple", UnitPrice: decimal.NewFromInt(80), Stock: 35},
		{Item: "Cupcake", Flavour: "Strawberry", UnitPrice: decimal.NewFromInt(60), Stock: 48},
		{Item: "Cupcake", Flavour: "Blueberry", UnitPrice: decimal.NewFromInt(70), Stock: 30},
		{Item: "Cookie", Flavour: "Butterscotch", UnitPrice: decimal.RequireFromString("25.50"), Stock: 100},
	} {
		s.inventory[item.Key()] = item
	}

	password := os.Getenv("SEED_EMPLOYEE_PASSWORD")
	if password == "" {
		password = "bakery123"
		log.Warn().Msg("memory store using default dev employee credentials; set SEED_EMPLOYEE_PASSWORD to override")
	}
	if err := s.AddEmployee(1001, password); err != nil {
		log.Fatal().Err(err).Msg("failed to seed employee")
	}
	return s
}

// PutItem inserts or replaces an inventory row.
func (s *Store) PutItem(item domain.InventoryItem) error {
	if strings.TrimSpace(item.Item) == "" || strings.TrimSpace(item.Flavour) == "" {
		return domain.NewValidationError("item", "item and flavour are required")
	}
	if item.Stock < 0 {
		return domain.NewValidationError("stock", "must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[item.Key()] = item
	return nil
}

func (s *Store) AddEmployee(id int, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash employee password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[id] = domain.EmployeeAccount{ID: id, PasswordHash: string(hash), Active: true}
	return nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(s.inventory))
	for _, item := range s.inventory {
		items = append(items, item)
	}
	slices.SortFunc(items, compareItems)
	return items, nil
}

func (s *Store) DistinctItems(ctx context.Context) ([]string, error) {
	items, err := s.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if len(names) == 0 || names[len(names)-1] != item.Item {
			names = append(names, item.Item)
		}
	}
	return names, nil
}

func (s *Store) FlavoursFor(ctx context.Context, item string) ([]domain.InventoryItem, error) {
	items, err := s.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	flavours := make([]domain.InventoryItem, 0, 4)
	for _, it := range items {
		if it.Item == item {
			flavours = append(flavours, it)
		}
	}
	return flavours, nil
}

func (s *Store) GetItem(_ context.Context, item string, flavour string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.inventory[domain.StockKey{Item: item, Flavour: flavour}]
	if !ok {
		return nil, &domain.NotFoundError{Item: item, Flavour: flavour}
	}
	return &found, nil
}

// Begin takes the store write lock; it is held until Commit or Rollback, which
// serializes checkouts against the same inventory.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memTx{
		s:          s,
		stock:      make(map[domain.StockKey]int),
		nextSerial: s.nextSerial,
	}, nil
}

func (s *Store) ReadAllSales(_ context.Context) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sales), nil
}

func (s *Store) LatestBillLines(_ context.Context, limit int) ([]domain.BillLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.bill) > limit {
		start = len(s.bill) - limit
	}
	return slices.Clone(s.bill[start:]), nil
}

func (s *Store) TopItemByQuantity(_ context.Context) (domain.TopSeller, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seller, ok := sales.TopItem(s.sales)
	return seller, ok, nil
}

func (s *Store) TopFlavourByQuantity(_ context.Context) (domain.TopSeller, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seller, ok := sales.TopFlavour(s.sales)
	return seller, ok, nil
}

func (s *Store) CreateFeedback(_ context.Context, text string, at time.Time) (*domain.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := domain.Feedback{ID: int64(len(s.feedback) + 1), Text: text, Date: at}
	s.feedback = append(s.feedback, entry)
	return &entry, nil
}

func (s *Store) GetEmployee(_ context.Context, id int) (*domain.EmployeeAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.employees[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &account, nil
}

// memTx stages writes and applies them to the store on Commit.
type memTx struct {
	s          *Store
	stock      map[domain.StockKey]int
	sales      []domain.SaleRecord
	bill       []domain.BillLine
	nextSerial int64
	done       bool
}

func (t *memTx) ReadStock(ctx context.Context, item string, flavour string) (int, error) {
	if err := t.usable(ctx); err != nil {
		return 0, err
	}
	key := domain.StockKey{Item: item, Flavour: flavour}
	if qty, ok := t.stock[key]; ok {
		return qty, nil
	}
	current, ok := t.s.inventory[key]
	if !ok {
		return 0, &domain.NotFoundError{Item: item, Flavour: flavour}
	}
	return current.Stock, nil
}

func (t *memTx) WriteStock(ctx context.Context, item string, flavour string, newValue int) error {
	if err := t.usable(ctx); err != nil {
		return err
	}
	key := domain.StockKey{Item: item, Flavour: flavour}
	if _, ok := t.s.inventory[key]; !ok {
		return &domain.NotFoundError{Item: item, Flavour: flavour}
	}
	if newValue < 0 {
		return fmt.Errorf("stock for %s/%s would become %d", item, flavour, newValue)
	}
	t.stock[key] = newValue
	return nil
}

func (t *memTx) AppendSale(ctx context.Context, record domain.SaleRecord) error {
	if err := t.usable(ctx); err != nil {
		return err
	}
	t.sales = append(t.sales, record)
	return nil
}

func (t *memTx) AppendBillLine(ctx context.Context, entry domain.BillLine) (domain.BillLine, error) {
	if err := t.usable(ctx); err != nil {
		return domain.BillLine{}, err
	}
	entry.Serial = t.nextSerial
	t.nextSerial++
	t.bill = append(t.bill, entry)
	return entry, nil
}

func (t *memTx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.s.mu.Unlock()

	for key, qty := range t.stock {
		item := t.s.inventory[key]
		item.Stock = qty
		t.s.inventory[key] = item
	}
	t.s.sales = append(t.s.sales, t.sales...)
	t.s.bill = append(t.s.bill, t.bill...)
	t.s.nextSerial = t.nextSerial
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *memTx) usable(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	return ctx.Err()
}

func compareItems(a, b domain.InventoryItem) int {
	if c := strings.Compare(a.Item, b.Item); c != 0 {
		return c
	}
	return strings.Compare(a.Flavour, b.Flavour)
}
