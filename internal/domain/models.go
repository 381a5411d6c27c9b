package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day format used in ledger dates and reports.
const DateLayout = "2006-01-02"

type InventoryItem struct {
	Item      string          `json:"item"`
	Flavour   string          `json:"flavour"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int             `json:"stock"`
}

type StockKey struct {
	Item    string `json:"item"`
	Flavour string `json:"flavour"`
}

func (i InventoryItem) Key() StockKey {
	return StockKey{Item: i.Item, Flavour: i.Flavour}
}

type CartLine struct {
	Item      string          `json:"item"`
	Flavour   string          `json:"flavour"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func (l CartLine) Key() StockKey {
	return StockKey{Item: l.Item, Flavour: l.Flavour}
}

type SaleRecord struct {
	Item      string          `json:"item"`
	Flavour   string          `json:"flavour"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	Date      time.Time       `json:"date"`
}

type BillLine struct {
	Serial    int64           `json:"serial"`
	Item      string          `json:"item"`
	Flavour   string          `json:"flavour"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type DailySales struct {
	Date          time.Time `json:"date"`
	TotalQuantity int       `json:"total_quantity"`
}

type ForecastPoint struct {
	Date              time.Time `json:"date"`
	Weekday           string    `json:"weekday"`
	PredictedQuantity float64   `json:"predicted_quantity"`
}

type ForecastReport struct {
	History     []DailySales    `json:"history"`
	Predictions []ForecastPoint `json:"predictions"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// TopSeller is the result of a top item / top flavour query.
type TopSeller struct {
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
}

type Feedback struct {
	ID   int64     `json:"id"`
	Text string    `json:"text"`
	Date time.Time `json:"date"`
}

type Receipt struct {
	GrandTotal decimal.Decimal `json:"grand_total"`
	Date       time.Time       `json:"date"`
	Lines      []BillLine      `json:"lines"`
}

type CartView struct {
	ID         string          `json:"id"`
	Lines      []CartLine      `json:"lines"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type BillView struct {
	Date       time.Time       `json:"date"`
	Lines      []BillLine      `json:"lines"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// EmployeeAccount is an internal persistence model for credentials.
type EmployeeAccount struct {
	ID           int
	PasswordHash string
	Active       bool
}

type Actor struct {
	EmployeeID int
	Role       string
}

type LoginRequest struct {
	EmployeeID int    `json:"employee_id" validate:"required,gt=0"`
	Password   string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type AddLineRequest struct {
	Item     string `json:"item" validate:"required"`
	Flavour  string `json:"flavour" validate:"required"`
	Quantity int    `json:"quantity"`
}

type FeedbackRequest struct {
	Text string `json:"text"`
}

const RoleEmployee = "employee"

// DateOf truncates t to its calendar day in loc, returned as midnight UTC of that day.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
