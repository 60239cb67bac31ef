package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// Line is the view of one bill line used for totals calculation.
type Line struct {
	Amount   Money
	Discount Money
	Voided   bool
}

// Summary aggregates computed bill totals. LineDiscount and CouponDiscount
// are zero or negative. Clamped reports that the raw net total was negative
// and has been clamped to zero; callers surface it as a warning.
type Summary struct {
	Subtotal       Money
	LineDiscount   Money
	CouponDiscount Money
	NetTotal       Money
	Clamped        bool
}

// Compute derives bill totals from the current line set and coupon amounts.
// It is a pure function: voided lines are excluded, nothing is written, and
// repeated calls over the same inputs yield identical results.
func Compute(lines []Line, couponAmounts []Money) Summary {
	var s Summary
	for _, l := range lines {
		if l.Voided {
			continue
		}
		s.Subtotal += l.Amount
		s.LineDiscount += l.Discount
	}
	for _, amount := range couponAmounts {
		if amount <= 0 {
			continue
		}
		s.CouponDiscount -= amount
	}
	s.NetTotal = s.Subtotal + s.LineDiscount + s.CouponDiscount
	if s.NetTotal < 0 {
		s.NetTotal = 0
		s.Clamped = true
	}
	return s
}
