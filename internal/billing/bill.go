package billing

import "time"

// Money represents a monetary value stored in minor units.
type Money = int64

// Status is the lifecycle state of a bill.
type Status string

const (
	// StatusOpen accepts scans, voids and coupons.
	StatusOpen Status = "OPEN"
	// StatusClosed is reached exactly once and freezes the net total.
	StatusClosed Status = "CLOSED"
	// StatusCancelled discards the bill.
	StatusCancelled Status = "CANCELLED"
)

// CartLine is one priced entry on a bill. Lines are never deleted, only
// voided; Voided is monotonic. A pair-promotion line always has Qty == 1.
type CartLine struct {
	ID             string    `json:"id"`
	ProductCode    string    `json:"productCode"`
	Description    string    `json:"description,omitempty"`
	Qty            int       `json:"qty"`
	UnitPrice      Money     `json:"unitPrice"`
	DiscountAmount Money     `json:"discountAmount"`
	PromoTag       string    `json:"promoTag,omitempty"`
	PairedWith     string    `json:"pairedWith,omitempty"`
	Voided         bool      `json:"voided"`
	CreatedAt      time.Time `json:"createdAt"`
}

// LineAmount is the price charged for this line before discount.
func (l CartLine) LineAmount() Money {
	return Money(l.Qty) * l.UnitPrice
}

// Active reports whether the line still counts towards the bill.
func (l CartLine) Active() bool {
	return !l.Voided
}

// Coupon is a bill-level discount applied at the end of the sale.
type Coupon struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Amount Money  `json:"amount"`
}

// Bill is one checkout run. Version is the compare-and-swap token guarding
// all mutations of the line set; every successful write bumps it.
type Bill struct {
	ID              string     `json:"id"`
	Status          Status     `json:"status"`
	Lines           []CartLine `json:"lines"`
	Coupons         []Coupon   `json:"coupons"`
	NetTotalAtClose Money      `json:"netTotalAtClose,omitempty"`
	PaymentAmount   Money      `json:"paymentAmount,omitempty"`
	ChangeAmount    Money      `json:"changeAmount,omitempty"`
	Version         int64      `json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
}

// OpenSingle returns the id of the bill's active unpaired single-quantity
// line for the given product, or "" when none exists. At most one such line
// can exist per product at any time.
func OpenSingle(lines []CartLine, productCode string) string {
	for _, l := range lines {
		if !l.Active() || l.ProductCode != productCode {
			continue
		}
		if l.Qty == 1 && l.PairedWith == "" && l.PromoTag == "" {
			return l.ID
		}
	}
	return ""
}
