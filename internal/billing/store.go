package billing

import (
	"context"
	"time"
)

// LineUpdate mutates fields of an existing line in place. Nil pointers leave
// the field untouched; a pointer to the zero value clears it, which is how a
// void rebalance severs a pairing.
type LineUpdate struct {
	LineID         string
	Qty            *int
	DiscountAmount *Money
	PromoTag       *string
	PairedWith     *string
	Voided         *bool
}

// Mutation is one element of an atomic write batch: either an append or an
// in-place update. Exactly one field is set.
type Mutation struct {
	Append *CartLine
	Update *LineUpdate
}

// CloseRecord carries the figures frozen when a bill transitions to CLOSED.
type CloseRecord struct {
	NetTotal Money
	Payment  Money
	Change   Money
	ClosedAt time.Time
}

// LineStore owns the write protocol for a bill's line set.
//
// ApplyMutations is the linearization point: the whole batch is applied
// atomically against expectedVersion, or rejected. Implementations return
// ErrConflict when the bill's version moved since the read that produced the
// batch, and ErrInvalidState when the bill is no longer OPEN, so an
// in-flight mutation completing after a cancel is refused rather than
// applied.
type LineStore interface {
	ReadActiveLines(ctx context.Context, billID, productCode string) ([]CartLine, int64, error)
	GetLine(ctx context.Context, billID, lineID string) (CartLine, int64, error)
	ApplyMutations(ctx context.Context, billID string, expectedVersion int64, muts []Mutation) error
}

// BillStore owns bill lifecycle and bill-level records.
type BillStore interface {
	Create(ctx context.Context, bill Bill) error
	Get(ctx context.Context, billID string) (Bill, error)
	GetStatus(ctx context.Context, billID string) (Status, error)
	AddCoupon(ctx context.Context, billID string, c Coupon) error
	// Transition moves the bill from one status to another. The from-status
	// is validated inside the same atomic unit; a bill that already left
	// OPEN yields ErrInvalidState.
	Transition(ctx context.Context, billID string, from, to Status, rec *CloseRecord) error
}

// Store combines the two halves; every persistence backend implements both.
type Store interface {
	LineStore
	BillStore
}
