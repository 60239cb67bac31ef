package pairing

import (
	"errors"

	"github.com/noah-isme/backend-pos/internal/catalog"
)

// Money is a monetary value in minor units.
type Money = int64

// TagPair marks a line that participates in a pair promotion.
const TagPair = "PAIR"

// ErrInvalidQuantity is returned when the scanned quantity is not positive.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// NewLine describes one line to append to the bill.
type NewLine struct {
	ID          string
	ProductCode string
	Qty         int
	UnitPrice   Money
	Discount    Money
	PromoTag    string
	PairedWith  string
}

// Link is a back-pointer update for an existing line that gains a partner.
type Link struct {
	LineID     string
	PairedWith string
	PromoTag   string
}

// Plan is the set of writes that realises one scan. All of it must be
// applied atomically or not at all.
type Plan struct {
	Lines []NewLine
	Links []Link
}

// Build distributes qty units of the product into new lines.
//
// For a pair-promotion product the plan guarantees that every two units end
// up as one mutually paired line pair whose combined amount equals the pair
// price, with at most one unpaired single left over. openSingleID names the
// bill's existing unpaired single for this product ("" when none); when set,
// the first unit pairs with it and only the new line carries the discount,
// so the already-displayed line never changes price retroactively.
//
// nextID mints identifiers for appended lines; creation order determines
// which line of a fresh pair absorbs the discount (always the later one).
func Build(p catalog.Product, qty int, openSingleID string, nextID func() string) (Plan, error) {
	if qty <= 0 {
		return Plan{}, ErrInvalidQuantity
	}

	switch p.Method {
	case catalog.MethodPairPromo:
		return buildPairs(p, qty, openSingleID, nextID)
	case catalog.MethodMarkdown:
		return Plan{Lines: []NewLine{{
			ID:          nextID(),
			ProductCode: p.Code,
			Qty:         qty,
			UnitPrice:   p.MarkdownUnitPrice(),
		}}}, nil
	default:
		return Plan{Lines: []NewLine{{
			ID:          nextID(),
			ProductCode: p.Code,
			Qty:         qty,
			UnitPrice:   p.RegularPrice,
		}}}, nil
	}
}

func buildPairs(p catalog.Product, qty int, openSingleID string, nextID func() string) (Plan, error) {
	plan := Plan{}
	pending := qty

	if openSingleID != "" && pending >= 1 {
		mate := NewLine{
			ID:          nextID(),
			ProductCode: p.Code,
			Qty:         1,
			UnitPrice:   p.RegularPrice,
			Discount:    pairDiscount(p),
			PromoTag:    TagPair,
			PairedWith:  openSingleID,
		}
		plan.Lines = append(plan.Lines, mate)
		plan.Links = append(plan.Links, Link{
			LineID:     openSingleID,
			PairedWith: mate.ID,
			PromoTag:   TagPair,
		})
		pending--
	}

	for pending >= 2 {
		first := NewLine{
			ID:          nextID(),
			ProductCode: p.Code,
			Qty:         1,
			UnitPrice:   p.RegularPrice,
			PromoTag:    TagPair,
		}
		second := NewLine{
			ID:          nextID(),
			ProductCode: p.Code,
			Qty:         1,
			UnitPrice:   p.RegularPrice,
			Discount:    pairDiscount(p),
			PromoTag:    TagPair,
			PairedWith:  first.ID,
		}
		first.PairedWith = second.ID
		plan.Lines = append(plan.Lines, first, second)
		pending -= 2
	}

	if pending == 1 {
		plan.Lines = append(plan.Lines, NewLine{
			ID:          nextID(),
			ProductCode: p.Code,
			Qty:         1,
			UnitPrice:   p.RegularPrice,
		})
	}
	return plan, nil
}

// pairDiscount is the adjustment carried by the discounted line of a pair so
// that the pair sums to the pair price. Never positive: a pair price above
// two regular units yields no surcharge.
func pairDiscount(p catalog.Product) Money {
	d := p.PairPrice - 2*p.RegularPrice
	if d > 0 {
		return 0
	}
	return d
}
