// Package cart holds the per-session order lines built before checkout.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bakerypos/backend/internal/domain"
)

type State string

const (
	StateEmpty      State = "empty"
	StatePopulated  State = "populated"
	StateCheckedOut State = "checked_out"
	StateAbandoned  State = "abandoned"
)

// Cart is not safe for concurrent use; a Registry serializes access per session.
type Cart struct {
	lines []domain.CartLine
	state State
}

func New() *Cart {
	return &Cart{state: StateEmpty}
}

// AddLine prices the line against snapshot. The stock check is advisory: the
// snapshot may be stale by checkout time.
func (c *Cart) AddLine(item string, flavour string, quantity int, snapshot domain.InventoryItem) (domain.CartLine, error) {
	if quantity < 1 {
		return domain.CartLine{}, domain.NewValidationError("quantity", "must be a positive integer")
	}
	if snapshot.Item != item || snapshot.Flavour != flavour {
		return domain.CartLine{}, domain.NewValidationError("item", fmt.Sprintf("snapshot is for %s/%s", snapshot.Item, snapshot.Flavour))
	}
	if quantity > snapshot.Stock {
		return domain.CartLine{}, domain.NewValidationError("quantity", fmt.Sprintf("only %d available", snapshot.Stock))
	}

	line := domain.CartLine{
		Item:      item,
		Flavour:   flavour,
		Quantity:  quantity,
		UnitPrice: snapshot.UnitPrice,
		LineTotal: snapshot.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
	c.lines = append(c.lines, line)
	c.state = StatePopulated
	return line, nil
}

func (c *Cart) RemoveLine(index int) error {
	if index < 0 || index >= len(c.lines) {
		return domain.NewValidationError("index", fmt.Sprintf("no line at %d", index))
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
	if len(c.lines) == 0 {
		c.state = StateEmpty
	}
	return nil
}

// Clear abandons the cart without committing.
func (c *Cart) Clear() {
	c.reset(StateAbandoned)
}

// MarkCheckedOut clears the lines after a committed checkout.
func (c *Cart) MarkCheckedOut() {
	c.reset(StateCheckedOut)
}

func (c *Cart) reset(state State) {
	c.lines = nil
	if c.state == StateEmpty && state == StateAbandoned {
		return
	}
	c.state = state
}

func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int { return len(c.lines) }

func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }

func (c *Cart) State() State { return c.state }

func (c *Cart) GrandTotal() decimal.Decimal {
	return GrandTotal(c.lines)
}

func GrandTotal(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	return total
}
