package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"

	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates missing tables. It never alters existing ones.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertItem inserts an inventory row or replaces its price and stock.
func (s *Store) UpsertItem(ctx context.Context, item domain.InventoryItem) error {
	if item.Item == "" || item.Flavour == "" {
		return domain.NewValidationError("item", "item and flavour are required")
	}
	if item.Stock < 0 {
		return domain.NewValidationError("stock", "must not be negative")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (item, flavour, unit_price, stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item, flavour)
		DO UPDATE SET unit_price = EXCLUDED.unit_price, stock = EXCLUDED.stock
	`, item.Item, item.Flavour, item.UnitPrice, item.Stock)
	return err
}

func (s *Store) AddEmployee(ctx context.Context, id int, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash employee password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO employees (id, password_hash, active) VALUES ($1, $2, true)
	`, id, string(hash))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidationError("employee_id", fmt.Sprintf("employee %d already exists", id))
		}
		return err
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.queryItems(ctx, `
		SELECT item, flavour, unit_price, stock
		FROM inventory
		ORDER BY item, flavour
	`)
}

func (s *Store) DistinctItems(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT item FROM inventory ORDER BY item`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0, 16)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) FlavoursFor(ctx context.Context, item string) ([]domain.InventoryItem, error) {
	return s.queryItems(ctx, `
		SELECT item, flavour, unit_price, stock
		FROM inventory
		WHERE item = $1
		ORDER BY flavour
	`, item)
}

func (s *Store) GetItem(ctx context.Context, item string, flavour string) (*domain.InventoryItem, error) {
	var it domain.InventoryItem
	err := s.db.QueryRowContext(ctx, `
		SELECT item, flavour, unit_price, stock
		FROM inventory
		WHERE item = $1 AND flavour = $2
	`, item, flavour).Scan(&it.Item, &it.Flavour, &it.UnitPrice, &it.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Item: item, Flavour: flavour}
		}
		return nil, err
	}
	return &it, nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 32)
	for rows.Next() {
		var it domain.InventoryItem
		if err := rows.Scan(&it.Item, &it.Flavour, &it.UnitPrice, &it.Stock); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func (s *Store) ReadAllSales(ctx context.Context) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item, flavour, quantity, line_total, sale_date
		FROM sales
		ORDER BY sale_date, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.SaleRecord, 0, 256)
	for rows.Next() {
		var rec domain.SaleRecord
		if err := rows.Scan(&rec.Item, &rec.Flavour, &rec.Quantity, &rec.LineTotal, &rec.Date); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) LatestBillLines(ctx context.Context, limit int) ([]domain.BillLine, error) {
	if limit < 1 {
		limit = 15
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT serial, item, flavour, quantity, line_total
		FROM (
			SELECT serial, item, flavour, quantity, line_total
			FROM bill
			ORDER BY serial DESC
			LIMIT $1
		) latest
		ORDER BY serial ASC
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.BillLine, 0, limit)
	for rows.Next() {
		var line domain.BillLine
		if err := rows.Scan(&line.Serial, &line.Item, &line.Flavour, &line.Quantity, &line.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) TopItemByQuantity(ctx context.Context) (domain.TopSeller, bool, error) {
	return s.topSeller(ctx, `
		SELECT item, SUM(quantity) AS total
		FROM sales
		GROUP BY item
		ORDER BY total DESC, item ASC
		LIMIT 1
	`)
}

func (s *Store) TopFlavourByQuantity(ctx context.Context) (domain.TopSeller, bool, error) {
	return s.topSeller(ctx, `
		SELECT flavour, SUM(quantity) AS total
		FROM sales
		GROUP BY flavour
		ORDER BY total DESC, flavour ASC
		LIMIT 1
	`)
}

func (s *Store) topSeller(ctx context.Context, query string) (domain.TopSeller, bool, error) {
	var seller domain.TopSeller
	err := s.db.QueryRowContext(ctx, query).Scan(&seller.Name, &seller.TotalQuantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TopSeller{}, false, nil
		}
		return domain.TopSeller{}, false, err
	}
	return seller, true, nil
}

func (s *Store) CreateFeedback(ctx context.Context, text string, at time.Time) (*domain.Feedback, error) {
	entry := domain.Feedback{Text: text, Date: at}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO feedback (body, feedback_date) VALUES ($1, $2)
		RETURNING id
	`, text, at).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) GetEmployee(ctx context.Context, id int) (*domain.EmployeeAccount, error) {
	var account domain.EmployeeAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash, active FROM employees WHERE id = $1
	`, id).Scan(&account.ID, &account.PasswordHash, &account.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// pgTx locks inventory rows with SELECT ... FOR UPDATE as they are read.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) ReadStock(ctx context.Context, item string, flavour string) (int, error) {
	var stock int
	err := t.tx.QueryRowContext(ctx, `
		SELECT stock FROM inventory
		WHERE item = $1 AND flavour = $2
		FOR UPDATE
	`, item, flavour).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &domain.NotFoundError{Item: item, Flavour: flavour}
		}
		return 0, err
	}
	return stock, nil
}

func (t *pgTx) WriteStock(ctx context.Context, item string, flavour string, newValue int) error {
	if newValue < 0 {
		return fmt.Errorf("stock for %s/%s would become %d", item, flavour, newValue)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE inventory SET stock = $3
		WHERE item = $1 AND flavour = $2
	`, item, flavour, newValue)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.NotFoundError{Item: item, Flavour: flavour}
	}
	return nil
}

func (t *pgTx) AppendSale(ctx context.Context, record domain.SaleRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (item, flavour, quantity, line_total, sale_date)
		VALUES ($1, $2, $3, $4, $5)
	`, record.Item, record.Flavour, record.Quantity, record.LineTotal, record.Date)
	return err
}

func (t *pgTx) AppendBillLine(ctx context.Context, entry domain.BillLine) (domain.BillLine, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO bill (item, flavour, quantity, line_total)
		VALUES ($1, $2, $3, $4)
		RETURNING serial
	`, entry.Item, entry.Flavour, entry.Quantity, entry.LineTotal).Scan(&entry.Serial)
	if err != nil {
		return domain.BillLine{}, err
	}
	return entry, nil
}

func (t *pgTx) Commit() error {
	return t.tx.Commit()
}

func (t *pgTx) Rollback() error {
	return t.tx.Rollback()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
