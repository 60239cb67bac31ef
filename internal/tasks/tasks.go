package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/billing"
)

// TypeBillClosed is the asynq task type for folding a closed bill into the
// daily sales rollup.
const TypeBillClosed = "report:bill_closed"

// BillClosedPayload carries the figures frozen at close time.
type BillClosedPayload struct {
	BillID   string        `json:"billId"`
	ClosedAt time.Time     `json:"closedAt"`
	NetTotal billing.Money `json:"netTotal"`
}

// NewBillClosedTask builds the asynq task for a closed bill.
func NewBillClosedTask(p BillClosedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal bill closed payload: %w", err)
	}
	return asynq.NewTask(TypeBillClosed, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Enqueuer submits report aggregation tasks. It satisfies the billing
// service's closed-bill notifier.
type Enqueuer struct {
	Client *asynq.Client
}

// BillClosed enqueues the aggregation task for one closed bill.
func (e Enqueuer) BillClosed(ctx context.Context, billID string, closedAt time.Time, netTotal billing.Money) error {
	if e.Client == nil {
		return fmt.Errorf("tasks: asynq client not configured")
	}
	task, err := NewBillClosedTask(BillClosedPayload{BillID: billID, ClosedAt: closedAt, NetTotal: netTotal})
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("tasks: enqueue %s: %w", TypeBillClosed, err)
	}
	return nil
}

// Aggregator folds closed bills into the daily rollup.
type Aggregator interface {
	BumpDailySales(ctx context.Context, day time.Time, takings billing.Money) error
}

// Handler processes report aggregation tasks.
type Handler struct {
	Store Aggregator
	Log   zerolog.Logger
}

// HandleBillClosed applies one closed bill to the daily sales rollup.
func (h *Handler) HandleBillClosed(ctx context.Context, t *asynq.Task) error {
	var payload BillClosedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads never become valid, do not retry.
		return fmt.Errorf("unmarshal bill closed payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.Store == nil {
		return fmt.Errorf("tasks: aggregator not configured")
	}
	if err := h.Store.BumpDailySales(ctx, payload.ClosedAt, payload.NetTotal); err != nil {
		return err
	}
	h.Log.Info().
		Str("bill_id", payload.BillID).
		Int64("net_total", payload.NetTotal).
		Str("day", payload.ClosedAt.Format("2006-01-02")).
		Msg("daily sales updated")
	return nil
}

// NewMux registers all task handlers.
func NewMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBillClosed, h.HandleBillClosed)
	return mux
}
