package cart

import (
	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places a unit price may carry.
const PriceScale = 2

// Lines is an ordered list of cart lines. A well-formed Lines value never
// holds two lines with the same ProductID and never holds a line with a
// non-positive quantity. All methods return a new slice and leave the
// receiver untouched, so snapshots handed out earlier stay valid.
type Lines []Line

// Add increments the quantity of the line for l.ProductID by one, or
// appends l with quantity 1 when no such line exists.
func (ls Lines) Add(l Line) Lines {
	out := ls.Clone()
	for i := range out {
		if out[i].ProductID == l.ProductID {
			out[i].Quantity++
			return out
		}
	}
	l.Quantity = 1
	return append(out, l)
}

// SetQuantity sets the quantity of productID. Negative values are clamped to
// zero and a zero quantity removes the line.
func (ls Lines) SetQuantity(productID string, qty int) Lines {
	qty = max(qty, 0)
	out := make(Lines, 0, len(ls))
	for _, l := range ls {
		if l.ProductID == productID {
			if qty == 0 {
				continue
			}
			l.Quantity = qty
		}
		out = append(out, l)
	}
	return out
}

// Remove drops the line for productID regardless of its quantity.
func (ls Lines) Remove(productID string) Lines {
	out := make(Lines, 0, len(ls))
	for _, l := range ls {
		if l.ProductID != productID {
			out = append(out, l)
		}
	}
	return out
}

// Quantity returns the quantity held for productID, or 0.
func (ls Lines) Quantity(productID string) int {
	for _, l := range ls {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

// Total returns Σ(UnitPrice × Quantity). The empty cart totals zero.
func (ls Lines) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Clone returns an independent copy.
func (ls Lines) Clone() Lines {
	if ls == nil {
		return Lines{}
	}
	out := make(Lines, len(ls))
	copy(out, ls)
	return out
}

// Normalize folds lines from an untrusted source into a well-formed list:
// duplicate product ids are summed into the first occurrence and lines with
// a non-positive quantity are dropped.
func (ls Lines) Normalize() Lines {
	out := make(Lines, 0, len(ls))
	index := make(map[string]int, len(ls))
	for _, l := range ls {
		if l.Quantity <= 0 {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// Validate reports the first malformed line, if any.
func (ls Lines) Validate() error {
	for _, l := range ls {
		if l.ProductID == "" {
			return ErrProductRequired
		}
		if l.UnitPrice.IsNegative() {
			return ErrNegativePrice
		}
		if !l.UnitPrice.Equal(l.UnitPrice.Truncate(PriceScale)) {
			return ErrPriceScale
		}
	}
	return nil
}
