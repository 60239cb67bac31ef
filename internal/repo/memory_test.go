package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/billing"
)

func seedBill(t *testing.T, m *Memory, id string) {
	t.Helper()
	require.NoError(t, m.Create(context.Background(), billing.Bill{
		ID:        id,
		Status:    billing.StatusOpen,
		CreatedAt: time.Date(2026, time.March, 4, 8, 0, 0, 0, time.UTC),
	}))
}

func TestMemoryApplyMutationsChecksVersion(t *testing.T) {
	m := NewMemory()
	seedBill(t, m, "b-1")

	ctx := context.Background()
	_, version, err := m.ReadActiveLines(ctx, "b-1", "P1")
	require.NoError(t, err)

	line := billing.CartLine{ID: "l-1", ProductCode: "P1", Qty: 1, UnitPrice: 100}
	require.NoError(t, m.ApplyMutations(ctx, "b-1", version, []billing.Mutation{{Append: &line}}))

	// The same expected version must now be stale.
	err = m.ApplyMutations(ctx, "b-1", version, []billing.Mutation{{Append: &billing.CartLine{ID: "l-2", ProductCode: "P1"}}})
	require.ErrorIs(t, err, billing.ErrConflict)
}

func TestMemoryApplyMutationsRejectsClosedBill(t *testing.T) {
	m := NewMemory()
	seedBill(t, m, "b-1")
	ctx := context.Background()

	require.NoError(t, m.Transition(ctx, "b-1", billing.StatusOpen, billing.StatusClosed, &billing.CloseRecord{
		NetTotal: 100, Payment: 100, ClosedAt: time.Now(),
	}))

	err := m.ApplyMutations(ctx, "b-1", 2, []billing.Mutation{{Append: &billing.CartLine{ID: "l-1"}}})
	require.ErrorIs(t, err, billing.ErrInvalidState)
}

func TestMemoryApplyMutationsRollsBackOnUnknownLine(t *testing.T) {
	m := NewMemory()
	seedBill(t, m, "b-1")
	ctx := context.Background()

	line := billing.CartLine{ID: "l-1", ProductCode: "P1", Qty: 1, UnitPrice: 100}
	voided := true
	err := m.ApplyMutations(ctx, "b-1", 1, []billing.Mutation{
		{Append: &line},
		{Update: &billing.LineUpdate{LineID: "missing", Voided: &voided}},
	})
	require.ErrorIs(t, err, billing.ErrLineNotFound)

	// The append in the failed batch must not stick.
	bill, err := m.Get(ctx, "b-1")
	require.NoError(t, err)
	require.Empty(t, bill.Lines)
}

func TestMemoryTransitionRequiresFromStatus(t *testing.T) {
	m := NewMemory()
	seedBill(t, m, "b-1")
	ctx := context.Background()

	require.NoError(t, m.Transition(ctx, "b-1", billing.StatusOpen, billing.StatusCancelled, nil))
	err := m.Transition(ctx, "b-1", billing.StatusOpen, billing.StatusClosed, nil)
	require.ErrorIs(t, err, billing.ErrInvalidState)
}

func TestMemoryDailySales(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)

	for i, net := range []billing.Money{1500, 2500} {
		id := string(rune('a' + i))
		seedBill(t, m, id)
		require.NoError(t, m.Transition(ctx, id, billing.StatusOpen, billing.StatusClosed, &billing.CloseRecord{
			NetTotal: net,
			Payment:  net,
			ClosedAt: day.Add(time.Duration(i+9) * time.Hour),
		}))
	}
	seedBill(t, m, "open-bill")

	count, takings, err := m.DailySales(ctx, day)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, billing.Money(4000), takings)

	count, takings, err = m.DailySales(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, takings)
}
