// Package accountsync runs one seller account through login, identity and
// the orders, returns and payouts passes.
package accountsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mrussa/meeshosync/internal/backoff"
	"github.com/mrussa/meeshosync/internal/fetch"
	"github.com/mrussa/meeshosync/internal/metrics"
	"github.com/mrussa/meeshosync/internal/normalize"
	"github.com/mrussa/meeshosync/internal/portal"
	"github.com/mrussa/meeshosync/internal/repo"
	"go.uber.org/zap"
)

const (
	DefaultPassDelay  = 2 * time.Second
	DefaultPayoutDays = 12

	payoutDateLayout = "2006-01-02"
)

type SessionOpener interface {
	Open(ctx context.Context, email, password string) (portal.Session, error)
}

// Client is the portal surface used during one run.
type Client interface {
	GetUser(ctx context.Context) (portal.Supplier, error)
	fetch.Portal
}

type Store interface {
	UpsertOrders(ctx context.Context, recs []repo.OrderRecord) (repo.Result, error)
	UpsertReturns(ctx context.Context, recs []repo.OrderRecord) (repo.Result, error)
	UpsertPayouts(ctx context.Context, recs []repo.OrderRecord, pays []repo.PaymentRecord) (repo.Result, error)
}

type Config struct {
	PageDelay  time.Duration
	PassDelay  time.Duration
	PayoutDays int
	Retry      *backoff.Executor
}

// Report describes one finished run.
type Report struct {
	RunID      uuid.UUID `json:"run_id"`
	UserID     int64     `json:"user_id"`
	State      State     `json:"state"`
	Supplier   string    `json:"supplier,omitempty"`
	NoSupplier bool      `json:"no_supplier,omitempty"`
	Orders     int64     `json:"orders"`
	Returns    int64     `json:"returns"`
	Payouts    int64     `json:"payouts"`
	Payments   int64     `json:"payments"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Err        string    `json:"error,omitempty"`
}

type Syncer struct {
	sessions SessionOpener
	store    Store
	cfg      Config
	metrics  *metrics.Metrics
	log      *zap.Logger

	NewClient func(portal.Executor) Client
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

func New(sessions SessionOpener, store Store, cfg Config, m *metrics.Metrics, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PassDelay < 0 {
		cfg.PassDelay = DefaultPassDelay
	}
	if cfg.PayoutDays <= 0 {
		cfg.PayoutDays = DefaultPayoutDays
	}
	if cfg.Retry == nil {
		cfg.Retry = backoff.New(backoff.DefaultMaxRetries, backoff.DefaultInitialDelay)
	}
	return &Syncer{
		sessions: sessions,
		store:    store,
		cfg:      cfg,
		metrics:  m,
		log:      log,
		NewClient: func(e portal.Executor) Client {
			return portal.NewClient(e, log)
		},
		Now:   time.Now,
		Sleep: backoff.Sleep,
	}
}

// Run syncs one account. The browser session is closed on every return
// path. A missing supplier ends the run as Aborted with a nil error.
func (s *Syncer) Run(ctx context.Context, cred repo.Credential) (rep Report, err error) {
	rep = Report{RunID: uuid.New(), UserID: cred.UserID, State: StateIdle, StartedAt: s.Now().UTC()}
	log := s.log.With(zap.Int64("user_id", cred.UserID), zap.String("run_id", rep.RunID.String()))
	m := &machine{state: StateIdle}

	defer func() {
		if err != nil && !m.state.Terminal() {
			_ = m.to(StateAborted)
		}
		rep.State = m.state
		rep.FinishedAt = s.Now().UTC()
		if err != nil {
			rep.Err = err.Error()
		}
		s.metrics.AccountRun(string(rep.State))

		fields := []zap.Field{
			zap.String("state", string(rep.State)),
			zap.Int64("orders", rep.Orders),
			zap.Int64("returns", rep.Returns),
			zap.Int64("payouts", rep.Payouts),
			zap.Int64("payments", rep.Payments),
			zap.Int("skipped", rep.Skipped),
			zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)),
		}
		if err != nil {
			log.Error("account sync failed", append(fields, zap.Error(err))...)
			return
		}
		log.Info("account sync finished", fields...)
	}()

	if err = m.to(StateSessionEstablishing); err != nil {
		return rep, err
	}
	sess, err := s.sessions.Open(ctx, cred.Email, cred.Password)
	if err != nil {
		return rep, fmt.Errorf("login: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Debug("close session", zap.Error(cerr))
		}
	}()

	client := s.NewClient(sess.Executor())
	sup, err := client.GetUser(ctx)
	if errors.Is(err, portal.ErrNoSupplier) {
		log.Warn("no supplier behind account, skipping")
		rep.NoSupplier = true
		return rep, m.to(StateAborted)
	}
	if err != nil {
		return rep, fmt.Errorf("get user: %w", err)
	}
	rep.Supplier = sup.Identifier
	if err = m.to(StateIdentityResolved); err != nil {
		return rep, err
	}
	log = log.With(zap.String("supplier", sup.Identifier))

	f := fetch.New(client, s.cfg.Retry, s.cfg.PageDelay, s.metrics, log)
	f.Sleep = s.Sleep

	passes := []struct {
		state State
		name  string
		run   func(context.Context, *fetch.Fetcher, portal.Supplier, *Report, *zap.Logger) error
	}{
		{StateSyncingOrders, fetch.FamilyOrders, s.syncOrders},
		{StateSyncingReturns, fetch.FamilyReturns, s.syncReturns},
		{StateSyncingPayouts, fetch.FamilyPayouts, s.syncPayouts},
	}
	for _, p := range passes {
		if err = m.to(p.state); err != nil {
			return rep, err
		}
		start := s.Now()
		err = p.run(ctx, f, sup, &rep, log.With(zap.String("pass", p.name)))
		s.metrics.ObservePass(p.name, s.Now().Sub(start))
		if err != nil {
			return rep, fmt.Errorf("%s pass: %w", p.name, err)
		}
	}

	return rep, m.to(StateDone)
}

// pause separates statuses and dates inside a pass.
func (s *Syncer) pause(ctx context.Context, i int) error {
	if i == 0 {
		return nil
	}
	return s.Sleep(ctx, s.cfg.PassDelay)
}

func (s *Syncer) syncOrders(ctx context.Context, f *fetch.Fetcher, sup portal.Supplier, rep *Report, log *zap.Logger) error {
	for i, st := range fetch.OrderStatuses {
		if err := s.pause(ctx, i); err != nil {
			return err
		}
		groups, err := f.Orders(ctx, sup, st)
		if err != nil {
			return err
		}
		recs, skipped := normalize.Orders(rep.UserID, st, groups)
		rep.Skipped += skipped
		s.metrics.RecordsSkipped(fetch.FamilyOrders, skipped)

		res, err := s.store.UpsertOrders(ctx, recs)
		if err != nil {
			return fmt.Errorf("save orders %s: %w", st, err)
		}
		rep.Orders += res.Orders
		s.metrics.RowsWritten(fetch.FamilyOrders, "orders", res.Orders)
		log.Info("orders synced",
			zap.String("status", string(st)),
			zap.Int("records", len(recs)),
			zap.Int("skipped", skipped),
			zap.Int64("rows", res.Orders),
		)
	}
	return nil
}

func (s *Syncer) syncReturns(ctx context.Context, f *fetch.Fetcher, sup portal.Supplier, rep *Report, log *zap.Logger) error {
	for i, st := range fetch.ReturnStatuses {
		if err := s.pause(ctx, i); err != nil {
			return err
		}
		claims, err := f.Returns(ctx, sup, st)
		if err != nil {
			return err
		}
		recs, skipped := normalize.Returns(rep.UserID, st, claims)
		rep.Skipped += skipped
		s.metrics.RecordsSkipped(fetch.FamilyReturns, skipped)

		res, err := s.store.UpsertReturns(ctx, recs)
		if err != nil {
			return fmt.Errorf("save returns %s: %w", st, err)
		}
		rep.Returns += res.Orders
		s.metrics.RowsWritten(fetch.FamilyReturns, "orders", res.Orders)
		log.Info("returns synced",
			zap.String("status", string(st)),
			zap.Int("records", len(recs)),
			zap.Int("skipped", skipped),
			zap.Int64("rows", res.Orders),
		)
	}
	return nil
}

type payoutSlot struct {
	Date   string
	Status string
}

// payoutSchedule lists yesterday as paid, then days pending dates starting
// today. Dates are UTC calendar days.
func payoutSchedule(now time.Time, days int) []payoutSlot {
	today := now.UTC()
	out := make([]payoutSlot, 0, days+1)
	out = append(out, payoutSlot{Date: today.AddDate(0, 0, -1).Format(payoutDateLayout), Status: fetch.PayoutPaid})
	for i := 0; i < days; i++ {
		out = append(out, payoutSlot{Date: today.AddDate(0, 0, i).Format(payoutDateLayout), Status: fetch.PayoutPending})
	}
	return out
}

func payoutStatus(s string) repo.Status {
	if s == fetch.PayoutPaid {
		return repo.StatusPaid
	}
	return repo.StatusPendingPayment
}

func (s *Syncer) syncPayouts(ctx context.Context, f *fetch.Fetcher, sup portal.Supplier, rep *Report, log *zap.Logger) error {
	for i, slot := range payoutSchedule(s.Now(), s.cfg.PayoutDays) {
		if err := s.pause(ctx, i); err != nil {
			return err
		}
		items, err := f.Payouts(ctx, sup, slot.Date, slot.Status)
		if err != nil {
			return err
		}
		recs, pays, skipped := normalize.Payouts(rep.UserID, payoutStatus(slot.Status), slot.Date, items)
		rep.Skipped += skipped
		s.metrics.RecordsSkipped(fetch.FamilyPayouts, skipped)

		res, err := s.store.UpsertPayouts(ctx, recs, pays)
		if err != nil {
			return fmt.Errorf("save payouts %s %s: %w", slot.Date, slot.Status, err)
		}
		rep.Payouts += res.Orders
		rep.Payments += res.Payments
		s.metrics.RowsWritten(fetch.FamilyPayouts, "orders", res.Orders)
		s.metrics.RowsWritten(fetch.FamilyPayouts, "payments", res.Payments)
		log.Info("payouts synced",
			zap.String("date", slot.Date),
			zap.String("status", slot.Status),
			zap.Int("records", len(recs)),
			zap.Int("skipped", skipped),
			zap.Int64("rows", res.Orders),
			zap.Int64("payments", res.Payments),
		)
	}
	return nil
}
