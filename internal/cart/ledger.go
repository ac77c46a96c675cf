package cart

import (
	"errors"
	"fmt"

	"smartpos/engine/internal/domain"
	"smartpos/engine/internal/xid"
)

var (
	ErrOutOfStock   = errors.New("product out of stock")
	ErrLineNotFound = errors.New("cart line not found")
)

// InsufficientStockError reports the largest quantity the cart may hold so
// the operator can be told the exact ceiling.
type InsufficientStockError struct {
	SKU    string
	MaxQty int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: max %d", e.SKU, e.MaxQty)
}

// Ledger is the in-progress sale. Lines merge by product, every mutation
// recomputes the affected line subtotal, and quantities never exceed the
// stock observed when the product was last added.
type Ledger struct {
	lines []domain.CartLine
	stock map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{stock: make(map[string]int)}
}

// AddProduct adds one unit, merging into an existing line for the same
// product. Inactive and zero-stock products are rejected outright.
func (l *Ledger) AddProduct(p domain.Product) (domain.CartLine, error) {
	if !p.Active || p.Stock <= 0 {
		return domain.CartLine{}, ErrOutOfStock
	}
	l.stock[p.ID] = p.Stock

	for i := range l.lines {
		if l.lines[i].ProductID != p.ID {
			continue
		}
		if l.lines[i].Qty+1 > p.Stock {
			return domain.CartLine{}, &InsufficientStockError{SKU: p.SKU, MaxQty: p.Stock}
		}
		l.lines[i].Qty++
		l.lines[i].SubtotalCents = l.lines[i].UnitPriceCents * int64(l.lines[i].Qty)
		return l.lines[i], nil
	}

	line := domain.CartLine{
		ID:             xid.New("line"),
		ProductID:      p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		UnitPriceCents: p.PriceCents,
		Qty:            1,
		SubtotalCents:  p.PriceCents,
	}
	l.lines = append(l.lines, line)
	return line, nil
}

// SetQuantity replaces a line's quantity. Zero removes the line; anything
// above the product's stock ceiling is rejected without mutating the line.
func (l *Ledger) SetQuantity(lineID string, qty int) (domain.CartLine, error) {
	idx := l.indexOf(lineID)
	if idx < 0 {
		return domain.CartLine{}, ErrLineNotFound
	}
	if qty < 0 {
		return domain.CartLine{}, fmt.Errorf("quantity must not be negative, got %d", qty)
	}
	if qty == 0 {
		l.lines = append(l.lines[:idx], l.lines[idx+1:]...)
		return domain.CartLine{}, nil
	}

	max := l.stock[l.lines[idx].ProductID]
	if qty > max {
		return domain.CartLine{}, &InsufficientStockError{SKU: l.lines[idx].SKU, MaxQty: max}
	}
	l.lines[idx].Qty = qty
	l.lines[idx].SubtotalCents = l.lines[idx].UnitPriceCents * int64(qty)
	return l.lines[idx], nil
}

// RemoveLine removes a line unconditionally. Removing an absent line is a
// no-op so a double-tap on the delete button cannot error.
func (l *Ledger) RemoveLine(lineID string) {
	idx := l.indexOf(lineID)
	if idx < 0 {
		return
	}
	l.lines = append(l.lines[:idx], l.lines[idx+1:]...)
}

func (l *Ledger) Clear() {
	l.lines = nil
	l.stock = make(map[string]int)
}

// Lines returns a copy in insertion order.
func (l *Ledger) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *Ledger) Len() int {
	return len(l.lines)
}

func (l *Ledger) SubtotalCents() int64 {
	var total int64
	for _, line := range l.lines {
		total += line.SubtotalCents
	}
	return total
}

func (l *Ledger) indexOf(lineID string) int {
	for i := range l.lines {
		if l.lines[i].ID == lineID {
			return i
		}
	}
	return -1
}
