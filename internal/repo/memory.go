package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/events"
)

type memBill struct {
	bill    billing.Bill
	version int64
}

// Memory is an in-process bill store used by tests and single-node setups.
// Every write goes through the same version check as the Postgres store so
// the concurrency behavior matches.
type Memory struct {
	mu     sync.RWMutex
	bills  map[string]*memBill
	events []events.Event
	Now    func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{bills: make(map[string]*memBill)}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Create stores a new bill.
func (m *Memory) Create(_ context.Context, bill billing.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[bill.ID]; ok {
		return fmt.Errorf("bill %s already exists", bill.ID)
	}
	m.bills[bill.ID] = &memBill{bill: cloneBill(bill), version: 1}
	return nil
}

// Get returns a deep copy of the bill with its lines and coupons.
func (m *Memory) Get(_ context.Context, billID string) (billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.bills[billID]
	if !ok {
		return billing.Bill{}, fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
	}
	bill := cloneBill(entry.bill)
	bill.Version = entry.version
	return bill, nil
}

// GetStatus returns the bill's lifecycle status.
func (m *Memory) GetStatus(_ context.Context, billID string) (billing.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.bills[billID]
	if !ok {
		return "", fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
	}
	return entry.bill.Status, nil
}

// AddCoupon appends a coupon to an open bill.
func (m *Memory) AddCoupon(_ context.Context, billID string, coupon billing.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.bills[billID]
	if !ok {
		return fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
	}
	if entry.bill.Status != billing.StatusOpen {
		return fmt.Errorf("bill %s is %s: %w", billID, entry.bill.Status, billing.ErrInvalidState)
	}
	entry.bill.Coupons = append(entry.bill.Coupons, coupon)
	entry.version++
	return nil
}

// ReadActiveLines returns the non-voided lines for the product together with
// the bill's current version.
func (m *Memory) ReadActiveLines(_ context.Context, billID, productCode string) ([]billing.CartLine, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.bills[billID]
	if !ok {
		return nil, 0, fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
	}
	var lines []billing.CartLine
	for _, l := range entry.bill.Lines {
		if l.Voided || l.ProductCode != productCode {
			continue
		}
		lines = append(lines, l)
	}
	return lines, entry.version, nil
}

// GetLine returns a single line and the bill's current version.
func (m *Memory) GetLine(_ context.Context, billID, lineID string) (billing.CartLine, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.bills[billID]
	if !ok {
		return billing.CartLine{}, 0, fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
	}
	for _, l := range entry.bill.Lines {
		if l.ID == lineID {
			return l, entry.version, nil
		}
	}
	return billing.CartLine{}, 0, fmt.Errorf("line %s: %w", lineID, billing.ErrLineNotFound)
}

// ApplyMutations applies the batch atomically when the version still matches.
func (m *Memory) ApplyMutations(_ context.Context, billID string, expectedVersion int64, muts []billing.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.bills[billID]
	if !ok {
		return fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
	}
	if entry.bill.Status != billing.StatusOpen {
		return fmt.Errorf("bill %s is %s: %w", billID, entry.bill.Status, billing.ErrInvalidState)
	}
	if entry.version != expectedVersion {
		return fmt.Errorf("bill %s at version %d, expected %d: %w", billID, entry.version, expectedVersion, billing.ErrConflict)
	}

	// Apply against a copy so a failing update leaves the bill untouched.
	lines := append([]billing.CartLine(nil), entry.bill.Lines...)
	for _, mut := range muts {
		switch {
		case mut.Append != nil:
			lines = append(lines, *mut.Append)
		case mut.Update != nil:
			idx := -1
			for i, l := range lines {
				if l.ID == mut.Update.LineID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("line %s: %w", mut.Update.LineID, billing.ErrLineNotFound)
			}
			applyUpdate(&lines[idx], mut.Update)
		}
	}
	entry.bill.Lines = lines
	entry.version++
	return nil
}

// Transition performs the lifecycle move, recording close details when given.
func (m *Memory) Transition(_ context.Context, billID string, from, to billing.Status, rec *billing.CloseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.bills[billID]
	if !ok {
		return fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
	}
	if entry.bill.Status != from {
		return fmt.Errorf("bill %s is %s: %w", billID, entry.bill.Status, billing.ErrInvalidState)
	}
	entry.bill.Status = to
	if rec != nil {
		entry.bill.NetTotalAtClose = rec.NetTotal
		entry.bill.PaymentAmount = rec.Payment
		entry.bill.ChangeAmount = rec.Change
		closedAt := rec.ClosedAt
		entry.bill.ClosedAt = &closedAt
	}
	entry.version++
	return nil
}

// InsertDomainEvent records an event in memory.
func (m *Memory) InsertDomainEvent(_ context.Context, topic, billID string, payload []byte) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := events.Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		BillID:     billID,
		Payload:    append([]byte(nil), payload...),
		OccurredAt: m.now(),
	}
	m.events = append(m.events, ev)
	return ev, nil
}

// Events returns a snapshot of recorded events.
func (m *Memory) Events() []events.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]events.Event(nil), m.events...)
}

// DailySales reports closed-bill count and takings for the given calendar day.
func (m *Memory) DailySales(_ context.Context, day time.Time) (int, billing.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	var count int
	var takings billing.Money
	for _, entry := range m.bills {
		b := entry.bill
		if b.Status != billing.StatusClosed || b.ClosedAt == nil {
			continue
		}
		if b.ClosedAt.Before(start) || !b.ClosedAt.Before(end) {
			continue
		}
		count++
		takings += b.NetTotalAtClose
	}
	return count, takings, nil
}

func applyUpdate(line *billing.CartLine, upd *billing.LineUpdate) {
	if upd.Qty != nil {
		line.Qty = *upd.Qty
	}
	if upd.DiscountAmount != nil {
		line.DiscountAmount = *upd.DiscountAmount
	}
	if upd.PromoTag != nil {
		line.PromoTag = *upd.PromoTag
	}
	if upd.PairedWith != nil {
		line.PairedWith = *upd.PairedWith
	}
	if upd.Voided != nil {
		line.Voided = *upd.Voided
	}
}

func cloneBill(bill billing.Bill) billing.Bill {
	out := bill
	out.Lines = append([]billing.CartLine(nil), bill.Lines...)
	out.Coupons = append([]billing.Coupon(nil), bill.Coupons...)
	if bill.ClosedAt != nil {
		closedAt := *bill.ClosedAt
		out.ClosedAt = &closedAt
	}
	return out
}
