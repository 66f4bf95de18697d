package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type kind int

const (
	kindOrder kind = iota
	kindPayment
)

type stmt struct {
	sql  string
	args []any
	kind kind
}

// unit groups the statements produced by one record so a chunk never splits
// them across transactions.
type unit []stmt

func (r *SyncRepo) UpsertOrders(ctx context.Context, recs []OrderRecord) (Result, error) {
	units := make([]unit, 0, len(recs))
	for _, o := range recs {
		if err := checkKey(o.OrderNumber, o.SubOrderNumber); err != nil {
			return Result{}, err
		}
		units = append(units, unit{{sql: qUpsertOrder, args: orderArgs(o), kind: kindOrder}})
	}
	return r.exec(ctx, units)
}

func (r *SyncRepo) UpsertReturns(ctx context.Context, recs []OrderRecord) (Result, error) {
	units := make([]unit, 0, len(recs))
	for _, o := range recs {
		if err := checkKey(o.OrderNumber, o.SubOrderNumber); err != nil {
			return Result{}, err
		}
		if o.Return == nil {
			return Result{}, fmt.Errorf("%w: return details missing for %s/%s", ErrInconsistent, o.OrderNumber, o.SubOrderNumber)
		}
		units = append(units, unit{{sql: qUpsertReturn, args: returnArgs(o), kind: kindOrder}})
	}
	return r.exec(ctx, units)
}

// UpsertPayouts writes payout data onto order rows and into the payments
// table. recs[i] and pays[i] describe the same payout line.
func (r *SyncRepo) UpsertPayouts(ctx context.Context, recs []OrderRecord, pays []PaymentRecord) (Result, error) {
	if len(recs) != len(pays) {
		return Result{}, fmt.Errorf("%w: %d order rows for %d payments", ErrInconsistent, len(recs), len(pays))
	}
	units := make([]unit, 0, len(recs))
	for i, o := range recs {
		p := pays[i]
		if err := checkKey(o.OrderNumber, o.SubOrderNumber); err != nil {
			return Result{}, err
		}
		if o.Payment == nil {
			return Result{}, fmt.Errorf("%w: payment details missing for %s/%s", ErrInconsistent, o.OrderNumber, o.SubOrderNumber)
		}
		if p.PaymentDate == "" {
			return Result{}, fmt.Errorf("%w: payment date missing for %s/%s", ErrInconsistent, p.OrderNumber, p.SubOrderNumber)
		}
		units = append(units, unit{
			{sql: qUpsertPayoutOrder, args: payoutOrderArgs(o), kind: kindOrder},
			{sql: qUpsertPayment, args: paymentArgs(p), kind: kindPayment},
		})
	}
	return r.exec(ctx, units)
}

func (r *SyncRepo) exec(ctx context.Context, units []unit) (Result, error) {
	var total Result
	for start := 0; start < len(units); start += r.batchSize {
		end := min(start+r.batchSize, len(units))
		res, err := r.execBatch(ctx, units[start:end])
		if err != nil {
			return total, fmt.Errorf("chunk %d: %w", start/r.batchSize, err)
		}
		total.Orders += res.Orders
		total.Payments += res.Payments
	}
	return total, nil
}

func (r *SyncRepo) execBatch(ctx context.Context, units []unit) (res Result, err error) {
	ctxT, cancel := r.withTx(ctx)
	defer cancel()

	tx, err := r.Pool.BeginTx(ctxT, pgx.TxOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctxT)
			panic(p)
		}
	}()

	var b pgx.Batch
	var kinds []kind
	for _, u := range units {
		for _, s := range u {
			b.Queue(s.sql, s.args...)
			kinds = append(kinds, s.kind)
		}
	}

	br := tx.SendBatch(ctxT, &b)

	for i, k := range kinds {
		tag, execErr := br.Exec()
		if execErr != nil {
			_ = br.Close()
			_ = tx.Rollback(ctxT)
			return Result{}, fmt.Errorf("batch step %d: %w", i, execErr)
		}
		switch k {
		case kindPayment:
			res.Payments += tag.RowsAffected()
		default:
			res.Orders += tag.RowsAffected()
		}
	}

	if errClose := br.Close(); errClose != nil {
		_ = tx.Rollback(ctxT)
		return Result{}, fmt.Errorf("batch close: %w", errClose)
	}

	if cErr := tx.Commit(ctxT); cErr != nil {
		return Result{}, fmt.Errorf("commit: %w", cErr)
	}
	return res, nil
}

func checkKey(order, sub string) error {
	if order == "" || sub == "" || len(order) > maxKeyLen || len(sub) > maxKeyLen {
		return fmt.Errorf("%w: %q/%q", ErrBadKey, order, sub)
	}
	return nil
}

func orderArgs(o OrderRecord) []any {
	return []any{
		o.UserID, o.OrderNumber, o.SubOrderNumber,
		nullStr(o.ProductName), nullStr(o.ProductSKU), nullStr(o.ProductID), nullStr(o.Variation),
		nullInt(o.Quantity), nullTime(o.ExpectedDispatchDate), nullStr(o.SLAStatus),
		string(o.Status), nullTime(o.OrderedDate),
	}
}

func returnArgs(o OrderRecord) []any {
	d := o.Return
	return []any{
		o.UserID, o.OrderNumber, o.SubOrderNumber,
		nullStr(o.ProductName), nullStr(o.ProductSKU), nullStr(o.ProductID), nullStr(o.Variation),
		nullInt(o.Quantity), nullTime(o.OrderedDate), string(o.Status), nullStr(o.OrderType),
		nullStr(d.SubOrderIdentifier), nullStr(d.ReturnType), nullStr(d.ReturnSubType), nullStr(d.ShipmentStatus),
		nullTime(d.ExpectedDeliveryDate), nullTime(d.LastAttemptedDate),
		nullStr(d.CarrierName), nullStr(d.CarrierIdentifier), nullStr(d.CarrierAccountType),
		nullStr(d.TrackingURL), nullStr(d.AWB),
		nullStr(d.ReturnPriceType), nullStr(d.DetailedReason), nullStr(d.Reason),
		nullStr(d.ReverseOFDAttemptCountValue), nullStr(d.ReverseOFDAttemptCountLabel), nullTime(d.FirstAttemptedDate),
		nullStr(d.ProofOfDeliveryLabel), nullStr(d.DisplayMsg), d.OTPVerifiedFlag, nullStr(d.OTPVerifiedTime),
		nullStr(d.DigitalPodURL), nullStr(d.DigitalPodExpiryTime),
		nullTime(d.OrderDispatchDate), nullTime(d.OrderDeliveredDate),
	}
}

func payoutOrderArgs(o OrderRecord) []any {
	p := o.Payment
	return []any{
		o.UserID, o.OrderNumber, o.SubOrderNumber, nullStr(o.ProductSKU), string(o.Status),
		nullTime(p.DispatchDate), p.PaymentDate,
		p.Amount, p.Penalty, p.NetAmount, p.ReturnShippingCharge,
	}
}

func paymentArgs(p PaymentRecord) []any {
	return []any{
		p.UserID, p.OrderNumber, p.SubOrderNumber, nullStr(p.ProductSKU), nullStr(p.Status),
		p.PaymentDate, p.Amount, p.Penalty, p.NetAmount, p.ReturnShippingCharge,
	}
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
