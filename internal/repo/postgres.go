package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/events"
)

// Postgres persists bills, lines, coupons and domain events. Bill mutations
// are guarded by a per-bill version column: every write bumps it inside the
// same transaction, and a stale expected version aborts with ErrConflict.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres wraps a pgx pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

// Create stores a new bill row.
func (p *Postgres) Create(ctx context.Context, bill billing.Bill) error {
	_, err := p.Pool.Exec(ctx,
		`INSERT INTO bills (id, status, version, created_at) VALUES ($1, $2, 1, $3)`,
		bill.ID, string(bill.Status), bill.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

// Get loads the bill with all lines and coupons.
func (p *Postgres) Get(ctx context.Context, billID string) (billing.Bill, error) {
	var bill billing.Bill
	var status string
	var closedAt *time.Time
	err := p.Pool.QueryRow(ctx,
		`SELECT id, status, version, net_total_at_close, payment_amount, change_amount, created_at, closed_at
		 FROM bills WHERE id = $1`, billID).
		Scan(&bill.ID, &status, &bill.Version, &bill.NetTotalAtClose, &bill.PaymentAmount, &bill.ChangeAmount, &bill.CreatedAt, &closedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return billing.Bill{}, fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
		}
		return billing.Bill{}, fmt.Errorf("load bill: %w", err)
	}
	bill.Status = billing.Status(status)
	bill.ClosedAt = closedAt

	rows, err := p.Pool.Query(ctx,
		`SELECT id, product_code, description, qty, unit_price, discount_amount, promo_tag, paired_with, voided, created_at
		 FROM bill_lines WHERE bill_id = $1 ORDER BY created_at, id`, billID)
	if err != nil {
		return billing.Bill{}, fmt.Errorf("load bill lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l billing.CartLine
		if err := rows.Scan(&l.ID, &l.ProductCode, &l.Description, &l.Qty, &l.UnitPrice, &l.DiscountAmount, &l.PromoTag, &l.PairedWith, &l.Voided, &l.CreatedAt); err != nil {
			return billing.Bill{}, fmt.Errorf("scan bill line: %w", err)
		}
		bill.Lines = append(bill.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return billing.Bill{}, fmt.Errorf("iterate bill lines: %w", err)
	}

	crows, err := p.Pool.Query(ctx,
		`SELECT type, code, amount FROM bill_coupons WHERE bill_id = $1 ORDER BY id`, billID)
	if err != nil {
		return billing.Bill{}, fmt.Errorf("load bill coupons: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var c billing.Coupon
		if err := crows.Scan(&c.Type, &c.Code, &c.Amount); err != nil {
			return billing.Bill{}, fmt.Errorf("scan bill coupon: %w", err)
		}
		bill.Coupons = append(bill.Coupons, c)
	}
	if err := crows.Err(); err != nil {
		return billing.Bill{}, fmt.Errorf("iterate bill coupons: %w", err)
	}
	return bill, nil
}

// GetStatus returns the bill's lifecycle status.
func (p *Postgres) GetStatus(ctx context.Context, billID string) (billing.Status, error) {
	var status string
	err := p.Pool.QueryRow(ctx, `SELECT status FROM bills WHERE id = $1`, billID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
		}
		return "", fmt.Errorf("load bill status: %w", err)
	}
	return billing.Status(status), nil
}

// AddCoupon appends a coupon to an open bill.
func (p *Postgres) AddCoupon(ctx context.Context, billID string, coupon billing.Coupon) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	status, _, err := lockBill(ctx, tx, billID)
	if err != nil {
		return err
	}
	if status != billing.StatusOpen {
		return fmt.Errorf("bill %s is %s: %w", billID, status, billing.ErrInvalidState)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO bill_coupons (bill_id, type, code, amount) VALUES ($1, $2, $3, $4)`,
		billID, coupon.Type, coupon.Code, coupon.Amount); err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE bills SET version = version + 1 WHERE id = $1`, billID); err != nil {
		return fmt.Errorf("bump bill version: %w", err)
	}
	return tx.Commit(ctx)
}

// ReadActiveLines returns the non-voided lines for the product together with
// the bill's current version.
func (p *Postgres) ReadActiveLines(ctx context.Context, billID, productCode string) ([]billing.CartLine, int64, error) {
	var version int64
	err := p.Pool.QueryRow(ctx, `SELECT version FROM bills WHERE id = $1`, billID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
		}
		return nil, 0, fmt.Errorf("load bill version: %w", err)
	}
	rows, err := p.Pool.Query(ctx,
		`SELECT id, product_code, description, qty, unit_price, discount_amount, promo_tag, paired_with, voided, created_at
		 FROM bill_lines
		 WHERE bill_id = $1 AND product_code = $2 AND NOT voided
		 ORDER BY created_at, id`, billID, productCode)
	if err != nil {
		return nil, 0, fmt.Errorf("load active lines: %w", err)
	}
	defer rows.Close()
	var lines []billing.CartLine
	for rows.Next() {
		var l billing.CartLine
		if err := rows.Scan(&l.ID, &l.ProductCode, &l.Description, &l.Qty, &l.UnitPrice, &l.DiscountAmount, &l.PromoTag, &l.PairedWith, &l.Voided, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan active line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate active lines: %w", err)
	}
	return lines, version, nil
}

// GetLine returns a single line and the bill's current version.
func (p *Postgres) GetLine(ctx context.Context, billID, lineID string) (billing.CartLine, int64, error) {
	var version int64
	err := p.Pool.QueryRow(ctx, `SELECT version FROM bills WHERE id = $1`, billID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return billing.CartLine{}, 0, fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
		}
		return billing.CartLine{}, 0, fmt.Errorf("load bill version: %w", err)
	}
	var l billing.CartLine
	err = p.Pool.QueryRow(ctx,
		`SELECT id, product_code, description, qty, unit_price, discount_amount, promo_tag, paired_with, voided, created_at
		 FROM bill_lines WHERE bill_id = $1 AND id = $2`, billID, lineID).
		Scan(&l.ID, &l.ProductCode, &l.Description, &l.Qty, &l.UnitPrice, &l.DiscountAmount, &l.PromoTag, &l.PairedWith, &l.Voided, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return billing.CartLine{}, 0, fmt.Errorf("line %s: %w", lineID, billing.ErrLineNotFound)
		}
		return billing.CartLine{}, 0, fmt.Errorf("load line: %w", err)
	}
	return l, version, nil
}

// ApplyMutations applies the batch atomically when the version still matches.
func (p *Postgres) ApplyMutations(ctx context.Context, billID string, expectedVersion int64, muts []billing.Mutation) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	status, version, err := lockBill(ctx, tx, billID)
	if err != nil {
		return err
	}
	if status != billing.StatusOpen {
		return fmt.Errorf("bill %s is %s: %w", billID, status, billing.ErrInvalidState)
	}
	if version != expectedVersion {
		return fmt.Errorf("bill %s at version %d, expected %d: %w", billID, version, expectedVersion, billing.ErrConflict)
	}

	for _, mut := range muts {
		switch {
		case mut.Append != nil:
			l := mut.Append
			if _, err := tx.Exec(ctx,
				`INSERT INTO bill_lines (id, bill_id, product_code, description, qty, unit_price, discount_amount, promo_tag, paired_with, voided, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				l.ID, billID, l.ProductCode, l.Description, l.Qty, l.UnitPrice, l.DiscountAmount, l.PromoTag, l.PairedWith, l.Voided, l.CreatedAt); err != nil {
				return fmt.Errorf("insert line: %w", err)
			}
		case mut.Update != nil:
			if err := applyLineUpdate(ctx, tx, billID, mut.Update); err != nil {
				return err
			}
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE bills SET version = version + 1 WHERE id = $1`, billID); err != nil {
		return fmt.Errorf("bump bill version: %w", err)
	}
	return tx.Commit(ctx)
}

// Transition performs the lifecycle move, recording close details when given.
func (p *Postgres) Transition(ctx context.Context, billID string, from, to billing.Status, rec *billing.CloseRecord) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	status, _, err := lockBill(ctx, tx, billID)
	if err != nil {
		return err
	}
	if status != from {
		return fmt.Errorf("bill %s is %s: %w", billID, status, billing.ErrInvalidState)
	}
	if rec != nil {
		_, err = tx.Exec(ctx,
			`UPDATE bills SET status = $2, version = version + 1,
			        net_total_at_close = $3, payment_amount = $4, change_amount = $5, closed_at = $6
			 WHERE id = $1`,
			billID, string(to), rec.NetTotal, rec.Payment, rec.Change, rec.ClosedAt)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE bills SET status = $2, version = version + 1 WHERE id = $1`,
			billID, string(to))
	}
	if err != nil {
		return fmt.Errorf("transition bill: %w", err)
	}
	return tx.Commit(ctx)
}

// InsertDomainEvent records an event row.
func (p *Postgres) InsertDomainEvent(ctx context.Context, topic, billID string, payload []byte) (events.Event, error) {
	ev := events.Event{ID: uuid.NewString(), Topic: topic, BillID: billID, Payload: payload}
	err := p.Pool.QueryRow(ctx,
		`INSERT INTO domain_events (id, topic, bill_id, payload) VALUES ($1, $2, $3, $4)
		 RETURNING occurred_at`,
		ev.ID, ev.Topic, ev.BillID, ev.Payload).Scan(&ev.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}

// BumpDailySales folds one closed bill into the daily rollup.
func (p *Postgres) BumpDailySales(ctx context.Context, day time.Time, takings billing.Money) error {
	_, err := p.Pool.Exec(ctx,
		`INSERT INTO daily_sales (day, bills_closed, takings) VALUES ($1, 1, $2)
		 ON CONFLICT (day) DO UPDATE
		 SET bills_closed = daily_sales.bills_closed + 1,
		     takings = daily_sales.takings + EXCLUDED.takings`,
		day.Format("2006-01-02"), takings)
	if err != nil {
		return fmt.Errorf("bump daily sales: %w", err)
	}
	return nil
}

// DailySales reports closed-bill count and takings for the calendar day. The
// rollup row is preferred; when the worker has not caught up yet the figures
// are derived from the bills table directly.
func (p *Postgres) DailySales(ctx context.Context, day time.Time) (int, billing.Money, error) {
	var count int
	var takings billing.Money
	err := p.Pool.QueryRow(ctx,
		`SELECT bills_closed, takings FROM daily_sales WHERE day = $1`,
		day.Format("2006-01-02")).Scan(&count, &takings)
	if err == nil {
		return count, takings, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, fmt.Errorf("load daily sales: %w", err)
	}
	err = p.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(net_total_at_close), 0)
		 FROM bills
		 WHERE status = 'CLOSED' AND closed_at >= $1 AND closed_at < $1::date + INTERVAL '1 day'`,
		day.Format("2006-01-02")).Scan(&count, &takings)
	if err != nil {
		return 0, 0, fmt.Errorf("derive daily sales: %w", err)
	}
	return count, takings, nil
}

func lockBill(ctx context.Context, tx pgx.Tx, billID string) (billing.Status, int64, error) {
	var status string
	var version int64
	err := tx.QueryRow(ctx, `SELECT status, version FROM bills WHERE id = $1 FOR UPDATE`, billID).
		Scan(&status, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, fmt.Errorf("bill %s: %w", billID, billing.ErrBillNotFound)
		}
		return "", 0, fmt.Errorf("lock bill: %w", err)
	}
	return billing.Status(status), version, nil
}

func applyLineUpdate(ctx context.Context, tx pgx.Tx, billID string, upd *billing.LineUpdate) error {
	set := make([]string, 0, 5)
	args := []any{billID, upd.LineID}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Qty != nil {
		add("qty", *upd.Qty)
	}
	if upd.DiscountAmount != nil {
		add("discount_amount", *upd.DiscountAmount)
	}
	if upd.PromoTag != nil {
		add("promo_tag", *upd.PromoTag)
	}
	if upd.PairedWith != nil {
		add("paired_with", *upd.PairedWith)
	}
	if upd.Voided != nil {
		add("voided", *upd.Voided)
	}
	if len(set) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE bill_lines SET %s WHERE bill_id = $1 AND id = $2`, strings.Join(set, ", "))
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line %s: %w", upd.LineID, billing.ErrLineNotFound)
	}
	return nil
}
