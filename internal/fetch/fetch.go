// Package fetch drives the portal's paginated endpoints to completion.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mrussa/meeshosync/internal/backoff"
	"github.com/mrussa/meeshosync/internal/metrics"
	"github.com/mrussa/meeshosync/internal/portal"
	"github.com/mrussa/meeshosync/internal/repo"
	"go.uber.org/zap"
)

const (
	FamilyOrders  = "orders"
	FamilyReturns = "returns"
	FamilyPayouts = "payouts"

	OrdersLimit  = 50
	ReturnsSize  = 50
	PayoutsLimit = 20
)

const (
	PayoutPaid    = "paid"
	PayoutPending = "pending"
)

var ErrUnknownStatus = errors.New("unknown status")

// OrderStatusCodes maps order statuses to the portal's numeric codes.
var OrderStatusCodes = map[repo.Status]int{
	repo.StatusPending:     1,
	repo.StatusReadyToShip: 3,
	repo.StatusShipped:     4,
	repo.StatusCancelled:   5,
}

// OrderStatuses and ReturnStatuses list the statuses in sync order.
var OrderStatuses = []repo.Status{
	repo.StatusPending,
	repo.StatusReadyToShip,
	repo.StatusShipped,
	repo.StatusCancelled,
}

var ReturnStatuses = []repo.Status{
	repo.StatusInTransit,
	repo.StatusOFDReverse,
	repo.StatusCompletedDelivered,
	repo.StatusCompletedLost,
	repo.StatusReverseDisposed,
}

// Portal is the subset of portal.Client the loops need.
type Portal interface {
	Orders(ctx context.Context, q portal.OrdersQuery) (portal.OrdersPage, error)
	ReturnClaims(ctx context.Context, q portal.ReturnsQuery) (portal.ReturnsPage, error)
	Payouts(ctx context.Context, q portal.PayoutsQuery) (portal.PayoutsPage, error)
}

type Fetcher struct {
	client    Portal
	retry     *backoff.Executor
	pageDelay time.Duration
	metrics   *metrics.Metrics
	log       *zap.Logger

	Sleep func(ctx context.Context, d time.Duration) error
}

func New(client Portal, retry *backoff.Executor, pageDelay time.Duration, m *metrics.Metrics, log *zap.Logger) *Fetcher {
	if retry == nil {
		retry = backoff.New(0, backoff.DefaultInitialDelay)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		client:    client,
		retry:     retry,
		pageDelay: pageDelay,
		metrics:   m,
		log:       log,
		Sleep:     backoff.Sleep,
	}
}

// retryFor copies the shared executor so retries are counted per family.
func (f *Fetcher) retryFor(family string, page int) *backoff.Executor {
	e := *f.retry
	next := f.retry.OnRetry
	e.OnRetry = func(attempt int, delay time.Duration, err error) {
		f.metrics.Retried(family)
		f.log.Warn("rate limited",
			zap.String("family", family),
			zap.Int("page", page),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if next != nil {
			next(attempt, delay, err)
		}
	}
	return &e
}

// Orders pages through one order status. It stops on an empty page or when
// the portal returns no cursor.
func (f *Fetcher) Orders(ctx context.Context, sup portal.Supplier, status repo.Status) ([]portal.OrderGroup, error) {
	code, ok := OrderStatusCodes[status]
	if !ok {
		return nil, fmt.Errorf("%w: order %q", ErrUnknownStatus, status)
	}

	var (
		out    []portal.OrderGroup
		cursor portal.Cursor
	)
	for page := 1; ; page++ {
		q := portal.OrdersQuery{Supplier: sup, Status: code, Limit: OrdersLimit, Cursor: cursor}
		p, err := backoff.Do(ctx, f.retryFor(FamilyOrders, page), func(ctx context.Context) (portal.OrdersPage, error) {
			return f.client.Orders(ctx, q)
		})
		if err != nil {
			return out, fmt.Errorf("orders %s page %d: %w", status, page, err)
		}
		f.metrics.PageFetched(FamilyOrders)

		if len(p.Data.Groups) == 0 {
			break
		}
		out = append(out, p.Data.Groups...)
		f.log.Debug("orders page",
			zap.String("status", string(status)),
			zap.Int("page", page),
			zap.Int("groups", len(p.Data.Groups)),
		)

		cursor = p.Cursor
		if cursor.IsEmpty() {
			break
		}
		if err := f.Sleep(ctx, f.pageDelay); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Returns pages through one shipment status. Once the portal hands out a
// filter cursor the filter itself is no longer sent.
func (f *Fetcher) Returns(ctx context.Context, sup portal.Supplier, status repo.Status) ([]portal.ReturnClaim, error) {
	if !slices.Contains(ReturnStatuses, status) {
		return nil, fmt.Errorf("%w: return %q", ErrUnknownStatus, status)
	}

	var (
		out          []portal.ReturnClaim
		cursor       portal.Cursor
		filterCursor portal.Cursor
		pointer      *int
	)
	for page := 1; ; page++ {
		q := portal.ReturnsQuery{
			Supplier:       sup,
			ShipmentStatus: string(status),
			Size:           ReturnsSize,
			PagePointer:    pointer,
			Cursor:         cursor,
			FilterCursor:   filterCursor,
		}
		p, err := backoff.Do(ctx, f.retryFor(FamilyReturns, page), func(ctx context.Context) (portal.ReturnsPage, error) {
			return f.client.ReturnClaims(ctx, q)
		})
		if err != nil {
			return out, fmt.Errorf("returns %s page %d: %w", status, page, err)
		}
		f.metrics.PageFetched(FamilyReturns)

		if len(p.Data) == 0 {
			break
		}
		out = append(out, p.Data...)
		f.log.Debug("returns page",
			zap.String("status", string(status)),
			zap.Int("page", page),
			zap.Int("claims", len(p.Data)),
			zap.Int("total_pages", p.TotalPages),
		)

		if p.Cursor.IsEmpty() || (p.TotalPages > 0 && page >= p.TotalPages) {
			break
		}
		cursor = p.Cursor
		filterCursor = p.FilterCursor
		one := 1
		pointer = &one

		if err := f.Sleep(ctx, f.pageDelay); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Payouts pages through one date and payment status by offset. A page is
// the last one once count - (offset + limit) <= 0.
func (f *Fetcher) Payouts(ctx context.Context, sup portal.Supplier, date, status string) ([]portal.Payout, error) {
	if status != PayoutPaid && status != PayoutPending {
		return nil, fmt.Errorf("%w: payout %q", ErrUnknownStatus, status)
	}

	var out []portal.Payout
	offset := 0
	for page := 1; ; page++ {
		q := portal.PayoutsQuery{Supplier: sup, Date: date, Status: status, Offset: offset, Limit: PayoutsLimit}
		p, err := backoff.Do(ctx, f.retryFor(FamilyPayouts, page), func(ctx context.Context) (portal.PayoutsPage, error) {
			return f.client.Payouts(ctx, q)
		})
		if err != nil {
			return out, fmt.Errorf("payouts %s %s offset %d: %w", date, status, offset, err)
		}
		f.metrics.PageFetched(FamilyPayouts)

		items := p.Response.Items
		if len(items) == 0 {
			break
		}
		out = append(out, items...)

		last := p.Response.Count-(offset+PayoutsLimit) <= 0
		f.log.Debug("payouts page",
			zap.String("date", date),
			zap.String("status", status),
			zap.Int("offset", offset),
			zap.Int("count", p.Response.Count),
			zap.Bool("last", last),
		)
		if last {
			break
		}
		offset += PayoutsLimit

		if err := f.Sleep(ctx, f.pageDelay); err != nil {
			return out, err
		}
	}
	return out, nil
}
