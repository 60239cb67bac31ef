package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pairing"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// defaultMaxRetries bounds how often a lost CAS race is retried with freshly
// re-read state before ErrConflict surfaces to the caller.
const defaultMaxRetries = 3

// ProductLookup resolves a scanned code or barcode to a product.
type ProductLookup interface {
	Lookup(ctx context.Context, codeOrBarcode string) (catalog.Product, error)
}

// Locker serializes work per bill across processes. Optional: the store's
// version CAS alone upholds linearizability, the lock removes wasted retries.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// ClosedNotifier is told about closed bills so downstream aggregation can run.
type ClosedNotifier interface {
	BillClosed(ctx context.Context, billID string, closedAt time.Time, netTotal Money) error
}

// Service implements the checkout engine: scanning with pair promotion,
// void rebalancing, coupon application, totals and the bill lifecycle.
type Service struct {
	Store      Store
	Catalog    ProductLookup
	Locker     Locker
	LockTTL    time.Duration
	MaxRetries int
	Events     *events.Bus
	Closed     ClosedNotifier
	Now        func() time.Time
	NewID      func() string
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s != nil && s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) maxRetries() int {
	if s == nil || s.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return s.MaxRetries
}

// withBillLock runs fn holding the per-bill lock when a locker is configured.
func (s *Service) withBillLock(ctx context.Context, billID string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return s.Locker.WithLock(ctx, lock.BillKey(billID), ttl, fn)
}

// Open creates a new OPEN bill with zero lines.
func (s *Service) Open(ctx context.Context) (Bill, error) {
	if s == nil || s.Store == nil {
		return Bill{}, errors.New("billing service not configured")
	}
	bill := Bill{
		ID:        s.newID(),
		Status:    StatusOpen,
		CreatedAt: s.now(),
	}
	if err := s.Store.Create(ctx, bill); err != nil {
		return Bill{}, err
	}
	obs.IncBillOpened()
	s.emit(ctx, events.TopicBillOpened, bill.ID, nil)
	return bill, nil
}

// Get returns the bill with all its lines and coupons.
func (s *Service) Get(ctx context.Context, billID string) (Bill, error) {
	if s == nil || s.Store == nil {
		return Bill{}, errors.New("billing service not configured")
	}
	return s.Store.Get(ctx, billID)
}

// AddQuantity distributes qty units of the scanned product into bill lines
// according to its promotion method. For a pair-promotion product every two
// units become one mutually paired line pair summing to the pair price; an
// existing unpaired single is consumed first and any odd unit is left as a
// new unpaired single. Returns the lines appended by this scan.
func (s *Service) AddQuantity(ctx context.Context, billID, codeOrBarcode string, qty int) ([]CartLine, error) {
	if s == nil || s.Store == nil || s.Catalog == nil {
		return nil, errors.New("billing service not configured")
	}
	if qty <= 0 {
		return nil, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	product, err := s.Catalog.Lookup(ctx, codeOrBarcode)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", codeOrBarcode, ErrProductNotFound)
		}
		return nil, err
	}

	var added []CartLine
	err = s.withBillLock(ctx, billID, func(ctx context.Context) error {
		var lockErr error
		added, lockErr = s.addQuantityLocked(ctx, billID, product, qty)
		return lockErr
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (s *Service) addQuantityLocked(ctx context.Context, billID string, product catalog.Product, qty int) ([]CartLine, error) {
	for attempt := 0; attempt < s.maxRetries(); attempt++ {
		if err := s.requireOpen(ctx, billID); err != nil {
			return nil, err
		}
		lines, version, err := s.Store.ReadActiveLines(ctx, billID, product.Code)
		if err != nil {
			return nil, err
		}

		// Non-promotional scans extend an existing line of the same price
		// instead of appending a duplicate.
		if product.Method != catalog.MethodPairPromo {
			if ext := s.extendMutation(lines, product, qty); ext != nil {
				if err := s.Store.ApplyMutations(ctx, billID, version, []Mutation{*ext}); err != nil {
					if errors.Is(err, ErrConflict) {
						obs.IncMutationConflict("scan")
						continue
					}
					return nil, err
				}
				updated, _, err := s.Store.GetLine(ctx, billID, ext.Update.LineID)
				if err != nil {
					return nil, err
				}
				return []CartLine{updated}, nil
			}
		}

		plan, err := pairing.Build(product, qty, OpenSingle(lines, product.Code), s.newID)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
		}
		muts, added, pairsFormed := s.planMutations(product, plan)
		if err := s.Store.ApplyMutations(ctx, billID, version, muts); err != nil {
			if errors.Is(err, ErrConflict) {
				obs.IncMutationConflict("scan")
				continue
			}
			return nil, err
		}
		for i := 0; i < pairsFormed; i++ {
			obs.IncPairFormed()
			s.emit(ctx, events.TopicPairFormed, billID, map[string]any{"productCode": product.Code})
		}
		return added, nil
	}
	return nil, fmt.Errorf("scan lost %d races on bill %s: %w", s.maxRetries(), billID, ErrConflict)
}

// extendMutation finds an active non-promotional line for the product at the
// same unit price and returns a quantity bump for it, or nil to append.
func (s *Service) extendMutation(lines []CartLine, product catalog.Product, qty int) *Mutation {
	unitPrice := product.RegularPrice
	if product.Method == catalog.MethodMarkdown {
		unitPrice = product.MarkdownUnitPrice()
	}
	for _, l := range lines {
		if !l.Active() || l.PromoTag != "" || l.PairedWith != "" {
			continue
		}
		if l.UnitPrice != unitPrice {
			continue
		}
		newQty := l.Qty + qty
		return &Mutation{Update: &LineUpdate{LineID: l.ID, Qty: &newQty}}
	}
	return nil
}

func (s *Service) planMutations(product catalog.Product, plan pairing.Plan) ([]Mutation, []CartLine, int) {
	now := s.now()
	newIDs := make(map[string]bool, len(plan.Lines))
	muts := make([]Mutation, 0, len(plan.Lines)+len(plan.Links))
	added := make([]CartLine, 0, len(plan.Lines))
	pairs := len(plan.Links)

	for _, nl := range plan.Lines {
		line := CartLine{
			ID:             nl.ID,
			ProductCode:    nl.ProductCode,
			Description:    product.Description,
			Qty:            nl.Qty,
			UnitPrice:      nl.UnitPrice,
			DiscountAmount: nl.Discount,
			PromoTag:       nl.PromoTag,
			PairedWith:     nl.PairedWith,
			CreatedAt:      now,
		}
		if nl.PairedWith != "" && newIDs[nl.PairedWith] {
			pairs++
		}
		newIDs[nl.ID] = true
		added = append(added, line)
		muts = append(muts, Mutation{Append: &line})
	}
	for _, link := range plan.Links {
		paired := link.PairedWith
		tag := link.PromoTag
		muts = append(muts, Mutation{Update: &LineUpdate{
			LineID:     link.LineID,
			PairedWith: &paired,
			PromoTag:   &tag,
		}})
	}
	return muts, added, pairs
}

// VoidLine marks the line voided and, when it was half of a pair, restores
// its partner to an unpaired full-price single in the same atomic batch. The
// voided line keeps whatever discount it had frozen at void time; voided
// lines are excluded from totals regardless.
func (s *Service) VoidLine(ctx context.Context, billID, lineID string) error {
	if s == nil || s.Store == nil {
		return errors.New("billing service not configured")
	}
	return s.withBillLock(ctx, billID, func(ctx context.Context) error {
		return s.voidLineLocked(ctx, billID, lineID)
	})
}

func (s *Service) voidLineLocked(ctx context.Context, billID, lineID string) error {
	for attempt := 0; attempt < s.maxRetries(); attempt++ {
		if err := s.requireOpen(ctx, billID); err != nil {
			return err
		}
		line, version, err := s.Store.GetLine(ctx, billID, lineID)
		if err != nil {
			return err
		}
		if line.Voided {
			return fmt.Errorf("line %s: %w", lineID, ErrAlreadyVoided)
		}

		voided := true
		muts := []Mutation{{Update: &LineUpdate{LineID: line.ID, Voided: &voided}}}

		if line.PairedWith != "" {
			partner, _, err := s.Store.GetLine(ctx, billID, line.PairedWith)
			if err != nil && !errors.Is(err, ErrLineNotFound) {
				return err
			}
			if err == nil && partner.Active() {
				var zero Money
				cleared := ""
				muts = append(muts, Mutation{Update: &LineUpdate{
					LineID:         partner.ID,
					DiscountAmount: &zero,
					PromoTag:       &cleared,
					PairedWith:     &cleared,
				}})
			}
		}

		if err := s.Store.ApplyMutations(ctx, billID, version, muts); err != nil {
			if errors.Is(err, ErrConflict) {
				obs.IncMutationConflict("void")
				continue
			}
			return err
		}
		obs.IncLineVoided()
		s.emit(ctx, events.TopicLineVoided, billID, map[string]any{"lineId": lineID})
		return nil
	}
	return fmt.Errorf("void lost %d races on bill %s: %w", s.maxRetries(), billID, ErrConflict)
}

// AddCoupon attaches a bill-level coupon. Amount must be zero or positive.
func (s *Service) AddCoupon(ctx context.Context, billID, couponType, code string, amount Money) error {
	if s == nil || s.Store == nil {
		return errors.New("billing service not configured")
	}
	if amount < 0 {
		return fmt.Errorf("coupon amount must not be negative: %w", ErrInvalidInput)
	}
	return s.Store.AddCoupon(ctx, billID, Coupon{Type: couponType, Code: code, Amount: amount})
}

// ComputeTotals derives the current totals from the bill's line set and
// coupons. Pure read, callable on any status.
func (s *Service) ComputeTotals(ctx context.Context, billID string) (pricing.Summary, error) {
	if s == nil || s.Store == nil {
		return pricing.Summary{}, errors.New("billing service not configured")
	}
	bill, err := s.Store.Get(ctx, billID)
	if err != nil {
		return pricing.Summary{}, err
	}
	return Totals(bill), nil
}

// Totals computes the summary for an already-loaded bill.
func Totals(bill Bill) pricing.Summary {
	lines := make([]pricing.Line, 0, len(bill.Lines))
	for _, l := range bill.Lines {
		lines = append(lines, pricing.Line{
			Amount:   l.LineAmount(),
			Discount: l.DiscountAmount,
			Voided:   l.Voided,
		})
	}
	coupons := make([]pricing.Money, 0, len(bill.Coupons))
	for _, c := range bill.Coupons {
		coupons = append(coupons, c.Amount)
	}
	return pricing.Compute(lines, coupons)
}

// CloseResult reports the frozen totals of a closed bill.
type CloseResult struct {
	NetTotal Money
	Change   Money
}

// Close computes final totals, records payment and change, and freezes the
// bill. The OPEN→CLOSED transition happens exactly once; a concurrent close
// or cancel surfaces as ErrInvalidState.
func (s *Service) Close(ctx context.Context, billID string, payment Money) (CloseResult, error) {
	if s == nil || s.Store == nil {
		return CloseResult{}, errors.New("billing service not configured")
	}
	var result CloseResult
	err := s.withBillLock(ctx, billID, func(ctx context.Context) error {
		bill, err := s.Store.Get(ctx, billID)
		if err != nil {
			return err
		}
		if bill.Status != StatusOpen {
			return fmt.Errorf("bill %s is %s: %w", billID, bill.Status, ErrInvalidState)
		}
		summary := Totals(bill)
		if payment < summary.NetTotal {
			return fmt.Errorf("tendered %d below net %d: %w", payment, summary.NetTotal, ErrInsufficientPayment)
		}
		closedAt := s.now()
		rec := CloseRecord{
			NetTotal: summary.NetTotal,
			Payment:  payment,
			Change:   payment - summary.NetTotal,
			ClosedAt: closedAt,
		}
		if err := s.Store.Transition(ctx, billID, StatusOpen, StatusClosed, &rec); err != nil {
			return err
		}
		result = CloseResult{NetTotal: rec.NetTotal, Change: rec.Change}
		obs.IncBillClosed()
		s.emit(ctx, events.TopicBillClosed, billID, map[string]any{
			"netTotal": rec.NetTotal,
			"payment":  rec.Payment,
			"change":   rec.Change,
		})
		if s.Closed != nil {
			if err := s.Closed.BillClosed(ctx, billID, closedAt, rec.NetTotal); err != nil {
				// Aggregation is best effort; the sale itself is committed.
				zerolog.Ctx(ctx).Warn().Err(err).Str("bill_id", billID).Msg("bill closed notification failed")
			}
		}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	return result, nil
}

// Cancel discards an OPEN bill.
func (s *Service) Cancel(ctx context.Context, billID string) error {
	if s == nil || s.Store == nil {
		return errors.New("billing service not configured")
	}
	return s.withBillLock(ctx, billID, func(ctx context.Context) error {
		if err := s.Store.Transition(ctx, billID, StatusOpen, StatusCancelled, nil); err != nil {
			return err
		}
		s.emit(ctx, events.TopicBillCancelled, billID, nil)
		return nil
	})
}

func (s *Service) requireOpen(ctx context.Context, billID string) error {
	status, err := s.Store.GetStatus(ctx, billID)
	if err != nil {
		return err
	}
	if status != StatusOpen {
		return fmt.Errorf("bill %s is %s: %w", billID, status, ErrInvalidState)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, topic, billID string, payload any) {
	if s.Events == nil {
		return
	}
	_, _ = s.Events.Emit(ctx, topic, billID, payload)
}
