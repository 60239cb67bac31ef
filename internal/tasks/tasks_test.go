package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/billing"
)

type recordingAggregator struct {
	day     time.Time
	takings billing.Money
	calls   int
	err     error
}

func (a *recordingAggregator) BumpDailySales(_ context.Context, day time.Time, takings billing.Money) error {
	a.calls++
	a.day = day
	a.takings = takings
	return a.err
}

func TestHandleBillClosed(t *testing.T) {
	closedAt := time.Date(2026, time.March, 4, 17, 45, 0, 0, time.UTC)
	task, err := NewBillClosedTask(BillClosedPayload{BillID: "b-1", ClosedAt: closedAt, NetTotal: 4500})
	require.NoError(t, err)
	require.Equal(t, TypeBillClosed, task.Type())

	agg := &recordingAggregator{}
	h := &Handler{Store: agg, Log: zerolog.Nop()}
	require.NoError(t, h.HandleBillClosed(context.Background(), task))
	require.Equal(t, 1, agg.calls)
	require.Equal(t, closedAt, agg.day)
	require.Equal(t, billing.Money(4500), agg.takings)
}

func TestHandleBillClosedMalformedPayloadSkipsRetry(t *testing.T) {
	h := &Handler{Store: &recordingAggregator{}, Log: zerolog.Nop()}
	task := asynq.NewTask(TypeBillClosed, []byte("not json"))

	err := h.HandleBillClosed(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleBillClosedPropagatesStoreError(t *testing.T) {
	storeErr := errors.New("db down")
	h := &Handler{Store: &recordingAggregator{err: storeErr}, Log: zerolog.Nop()}
	task, err := NewBillClosedTask(BillClosedPayload{BillID: "b-1", ClosedAt: time.Now(), NetTotal: 1})
	require.NoError(t, err)

	err = h.HandleBillClosed(context.Background(), task)
	require.ErrorIs(t, err, storeErr)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
