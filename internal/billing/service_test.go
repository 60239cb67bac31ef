package billing_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/repo"
)

type fakeCatalog struct {
	products map[string]catalog.Product
}

func (f *fakeCatalog) Lookup(_ context.Context, code string) (catalog.Product, error) {
	p, ok := f.products[catalog.NormalizeCode(code)]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func newTestService(t *testing.T) (*billing.Service, *repo.Memory) {
	t.Helper()
	store := repo.NewMemory()
	var seq int
	svc := &billing.Service{
		Store: store,
		Catalog: &fakeCatalog{products: map[string]catalog.Product{
			"WINE": {
				Code:         "WINE",
				Description:  "House Red 750ml",
				RegularPrice: 3000,
				PairPrice:    3000,
				Method:       catalog.MethodPairPromo,
			},
			"MILK": {
				Code:         "MILK",
				Description:  "Whole Milk 1L",
				RegularPrice: 250,
				Method:       catalog.MethodNone,
			},
			"JAM": {
				Code:         "JAM",
				Description:  "Strawberry Jam",
				RegularPrice: 500,
				PairPrice:    400,
				Method:       catalog.MethodMarkdown,
			},
		}},
		Now:   func() time.Time { return time.Date(2026, time.March, 4, 9, 30, 0, 0, time.UTC) },
		NewID: func() string { seq++; return fmt.Sprintf("line-%d", seq) },
	}
	return svc, store
}

func openBill(t *testing.T, svc *billing.Service) billing.Bill {
	t.Helper()
	bill, err := svc.Open(context.Background())
	require.NoError(t, err)
	require.Equal(t, billing.StatusOpen, bill.Status)
	return bill
}

func activeLines(t *testing.T, svc *billing.Service, billID string) []billing.CartLine {
	t.Helper()
	bill, err := svc.Get(context.Background(), billID)
	require.NoError(t, err)
	var out []billing.CartLine
	for _, l := range bill.Lines {
		if !l.Voided {
			out = append(out, l)
		}
	}
	return out
}

func TestAddQuantityPairPromoEvenQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	added, err := svc.AddQuantity(context.Background(), bill.ID, "wine", 2)
	require.NoError(t, err)
	require.Len(t, added, 2)

	first, second := added[0], added[1]
	require.Equal(t, second.ID, first.PairedWith)
	require.Equal(t, first.ID, second.PairedWith)
	require.Equal(t, "PAIR", first.PromoTag)
	require.Equal(t, "PAIR", second.PromoTag)

	// Pair price 3000 against two units at 3000 each: the discount lives
	// on the later line.
	require.Equal(t, billing.Money(0), first.DiscountAmount)
	require.Equal(t, billing.Money(-3000), second.DiscountAmount)

	summary, err := svc.ComputeTotals(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(6000), summary.Subtotal)
	require.Equal(t, pricing.Money(3000), summary.NetTotal)
}

func TestAddQuantityOddQuantityLeavesOpenSingle(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	added, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 3)
	require.NoError(t, err)
	require.Len(t, added, 3)

	var singles, paired int
	for _, l := range added {
		if l.PairedWith == "" {
			singles++
			require.Empty(t, l.PromoTag)
			require.Equal(t, billing.Money(0), l.DiscountAmount)
		} else {
			paired++
		}
	}
	require.Equal(t, 1, singles)
	require.Equal(t, 2, paired)
}

func TestAddQuantityConsumesOpenSingleFirst(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	first, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Empty(t, first[0].PairedWith)

	second, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].PairedWith)
	require.Equal(t, billing.Money(-3000), second[0].DiscountAmount)

	// The pre-existing single must now point back at its new mate with the
	// promo tag applied.
	mate, err := svc.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	for _, l := range mate.Lines {
		if l.ID == first[0].ID {
			require.Equal(t, second[0].ID, l.PairedWith)
			require.Equal(t, "PAIR", l.PromoTag)
			require.Equal(t, billing.Money(0), l.DiscountAmount)
		}
	}
}

func TestAddQuantityNonPromoExtendsExistingLine(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	first, err := svc.AddQuantity(context.Background(), bill.ID, "MILK", 2)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 2, first[0].Qty)

	second, err := svc.AddQuantity(context.Background(), bill.ID, "MILK", 3)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID)
	require.Equal(t, 5, second[0].Qty)

	require.Len(t, activeLines(t, svc, bill.ID), 1)
}

func TestAddQuantityMarkdownUsesDealPrice(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	added, err := svc.AddQuantity(context.Background(), bill.ID, "JAM", 2)
	require.NoError(t, err)
	require.Len(t, added, 1)
	require.Equal(t, billing.Money(400), added[0].UnitPrice)

	summary, err := svc.ComputeTotals(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(800), summary.NetTotal)
}

func TestAddQuantityUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	_, err := svc.AddQuantity(context.Background(), bill.ID, "NOPE", 1)
	require.ErrorIs(t, err, billing.ErrProductNotFound)
}

func TestAddQuantityRejectsNonPositiveQty(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	_, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 0)
	require.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestVoidLineRestoresPartner(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	added, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 2)
	require.NoError(t, err)
	discounted := added[1]
	require.NotZero(t, discounted.DiscountAmount)

	require.NoError(t, svc.VoidLine(context.Background(), bill.ID, added[0].ID))

	lines := activeLines(t, svc, bill.ID)
	require.Len(t, lines, 1)
	survivor := lines[0]
	require.Equal(t, discounted.ID, survivor.ID)
	require.Empty(t, survivor.PairedWith)
	require.Empty(t, survivor.PromoTag)
	require.Equal(t, billing.Money(0), survivor.DiscountAmount)

	summary, err := svc.ComputeTotals(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(3000), summary.NetTotal)
}

func TestVoidLineSymmetry(t *testing.T) {
	svc, _ := newTestService(t)

	net := func(voidIdx int) pricing.Money {
		bill := openBill(t, svc)
		added, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 2)
		require.NoError(t, err)
		require.NoError(t, svc.VoidLine(context.Background(), bill.ID, added[voidIdx].ID))
		summary, err := svc.ComputeTotals(context.Background(), bill.ID)
		require.NoError(t, err)
		return summary.NetTotal
	}

	require.Equal(t, net(0), net(1))
}

func TestVoidLineTwiceRejected(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	added, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 2)
	require.NoError(t, err)
	require.NoError(t, svc.VoidLine(context.Background(), bill.ID, added[0].ID))

	err = svc.VoidLine(context.Background(), bill.ID, added[0].ID)
	require.ErrorIs(t, err, billing.ErrAlreadyVoided)

	// The partner must not be rebalanced twice.
	lines := activeLines(t, svc, bill.ID)
	require.Len(t, lines, 1)
	require.Equal(t, billing.Money(0), lines[0].DiscountAmount)
}

func TestVoidThenRescanFormsNewPair(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	added, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 2)
	require.NoError(t, err)
	require.NoError(t, svc.VoidLine(context.Background(), bill.ID, added[1].ID))

	rescanned, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 1)
	require.NoError(t, err)
	require.Len(t, rescanned, 1)
	require.Equal(t, added[0].ID, rescanned[0].PairedWith)
	require.Equal(t, billing.Money(-3000), rescanned[0].DiscountAmount)

	summary, err := svc.ComputeTotals(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(3000), summary.NetTotal)
}

func TestVoidUnknownLine(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	err := svc.VoidLine(context.Background(), bill.ID, "missing")
	require.ErrorIs(t, err, billing.ErrLineNotFound)
}

func TestCouponClampsNetTotal(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	_, err := svc.AddQuantity(context.Background(), bill.ID, "MILK", 1)
	require.NoError(t, err)
	require.NoError(t, svc.AddCoupon(context.Background(), bill.ID, "AMOUNT", "WELCOME", 1000))

	summary, err := svc.ComputeTotals(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(0), summary.NetTotal)
	require.True(t, summary.Clamped)
}

func TestAddCouponRejectsNegativeAmount(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	err := svc.AddCoupon(context.Background(), bill.ID, "AMOUNT", "BAD", -1)
	require.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestCloseComputesChangeAndFreezesBill(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	_, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 2)
	require.NoError(t, err)

	result, err := svc.Close(context.Background(), bill.ID, 5000)
	require.NoError(t, err)
	require.Equal(t, billing.Money(3000), result.NetTotal)
	require.Equal(t, billing.Money(2000), result.Change)

	closed, err := svc.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, billing.StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, billing.Money(5000), closed.PaymentAmount)

	_, err = svc.AddQuantity(context.Background(), bill.ID, "MILK", 1)
	require.ErrorIs(t, err, billing.ErrInvalidState)

	err = svc.VoidLine(context.Background(), bill.ID, closed.Lines[0].ID)
	require.ErrorIs(t, err, billing.ErrInvalidState)
}

func TestCloseInsufficientPayment(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	_, err := svc.AddQuantity(context.Background(), bill.ID, "WINE", 2)
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), bill.ID, 2999)
	require.ErrorIs(t, err, billing.ErrInsufficientPayment)

	status, err := svc.Store.GetStatus(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, billing.StatusOpen, status)
}

func TestCancelThenMutateRejected(t *testing.T) {
	svc, _ := newTestService(t)
	bill := openBill(t, svc)

	require.NoError(t, svc.Cancel(context.Background(), bill.ID))

	_, err := svc.AddQuantity(context.Background(), bill.ID, "MILK", 1)
	require.ErrorIs(t, err, billing.ErrInvalidState)

	err = svc.Cancel(context.Background(), bill.ID)
	require.ErrorIs(t, err, billing.ErrInvalidState)

	_, err = svc.Close(context.Background(), bill.ID, 100)
	require.ErrorIs(t, err, billing.ErrInvalidState)
}

func TestConcurrentScansFormExactlyOnePair(t *testing.T) {
	store := repo.NewMemory()
	svc := &billing.Service{
		Store: store,
		Catalog: &fakeCatalog{products: map[string]catalog.Product{
			"WINE": {
				Code:         "WINE",
				RegularPrice: 3000,
				PairPrice:    3000,
				Method:       catalog.MethodPairPromo,
			},
		}},
		MaxRetries: 10,
	}
	bill := openBill(t, svc)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AddQuantity(context.Background(), bill.ID, "WINE", 1)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	lines := activeLines(t, svc, bill.ID)
	require.Len(t, lines, 2)
	require.Equal(t, lines[1].ID, lines[0].PairedWith)
	require.Equal(t, lines[0].ID, lines[1].PairedWith)

	summary, err := svc.ComputeTotals(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(3000), summary.NetTotal)
}

func TestUnknownBill(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, billing.ErrBillNotFound)

	_, err = svc.AddQuantity(context.Background(), "missing", "WINE", 1)
	require.ErrorIs(t, err, billing.ErrBillNotFound)
}
