package accountsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mrussa/meeshosync/internal/browser"
	"github.com/mrussa/meeshosync/internal/metrics"
	"github.com/mrussa/meeshosync/internal/portal"
	"github.com/mrussa/meeshosync/internal/repo"
	"github.com/stretchr/testify/require"
)

type fakeSession struct{ closes int }

func (s *fakeSession) Executor() portal.Executor { return nil }
func (s *fakeSession) Close() error             { s.closes++; return nil }

type fakeOpener struct {
	sess            *fakeSession
	err             error
	email, password string
}

func (o *fakeOpener) Open(_ context.Context, email, password string) (portal.Session, error) {
	o.email, o.password = email, password
	if o.err != nil {
		return nil, o.err
	}
	return o.sess, nil
}

type fakeClient struct {
	sup     portal.Supplier
	userErr error

	orders     map[int]portal.OrdersPage
	returns    map[string]portal.ReturnsPage
	returnsErr map[string]error
	payouts    map[string]portal.PayoutsPage

	calls []string
}

func (c *fakeClient) GetUser(context.Context) (portal.Supplier, error) {
	c.calls = append(c.calls, "getUser")
	return c.sup, c.userErr
}

func (c *fakeClient) Orders(_ context.Context, q portal.OrdersQuery) (portal.OrdersPage, error) {
	c.calls = append(c.calls, fmt.Sprintf("orders:%d", q.Status))
	return c.orders[q.Status], nil
}

func (c *fakeClient) ReturnClaims(_ context.Context, q portal.ReturnsQuery) (portal.ReturnsPage, error) {
	c.calls = append(c.calls, "returns:"+q.ShipmentStatus)
	return c.returns[q.ShipmentStatus], c.returnsErr[q.ShipmentStatus]
}

func (c *fakeClient) Payouts(_ context.Context, q portal.PayoutsQuery) (portal.PayoutsPage, error) {
	key := q.Date + "/" + q.Status
	c.calls = append(c.calls, "payouts:"+key)
	return c.payouts[key], nil
}

type fakeStore struct {
	orders, returns, payouts int
	lastOrders               []repo.OrderRecord
	lastPayments             []repo.PaymentRecord
	failOrders               error
}

func (s *fakeStore) UpsertOrders(_ context.Context, recs []repo.OrderRecord) (repo.Result, error) {
	s.orders++
	if s.failOrders != nil {
		return repo.Result{}, s.failOrders
	}
	if len(recs) > 0 {
		s.lastOrders = recs
	}
	return repo.Result{Orders: int64(len(recs))}, nil
}

func (s *fakeStore) UpsertReturns(_ context.Context, recs []repo.OrderRecord) (repo.Result, error) {
	s.returns++
	return repo.Result{Orders: int64(len(recs))}, nil
}

func (s *fakeStore) UpsertPayouts(_ context.Context, recs []repo.OrderRecord, pays []repo.PaymentRecord) (repo.Result, error) {
	s.payouts++
	if len(pays) > 0 {
		s.lastPayments = pays
	}
	return repo.Result{Orders: int64(len(recs)), Payments: int64(len(pays))}, nil
}

var fixedNow = time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)

var cred = repo.Credential{UserID: 625, Email: "seller@shop.in", Password: "secret"}

type harness struct {
	syncer  *Syncer
	opener  *fakeOpener
	client  *fakeClient
	store   *fakeStore
	metrics *metrics.Metrics
	sleeps  []time.Duration
}

func newHarness() *harness {
	h := &harness{
		opener: &fakeOpener{sess: &fakeSession{}},
		client: &fakeClient{
			sup:        portal.Supplier{ID: "42", Identifier: "ident-42", Name: "Shop"},
			orders:     map[int]portal.OrdersPage{},
			returns:    map[string]portal.ReturnsPage{},
			returnsErr: map[string]error{},
			payouts:    map[string]portal.PayoutsPage{},
		},
		store:   &fakeStore{},
		metrics: metrics.New(),
	}
	h.syncer = New(h.opener, h.store, Config{PageDelay: time.Second, PassDelay: 2 * time.Second, PayoutDays: 12}, h.metrics, nil)
	h.syncer.NewClient = func(portal.Executor) Client { return h.client }
	h.syncer.Now = func() time.Time { return fixedNow }
	h.syncer.Sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func Test_Run_AllPasses_Done(t *testing.T) {
	h := newHarness()

	var op portal.OrdersPage
	op.Data.Groups = []portal.OrderGroup{
		{Orders: []portal.Order{{OrderNum: "1001", SubOrders: []portal.SubOrder{{SubOrderNum: "1001_1"}}}}},
		{Orders: []portal.Order{{OrderNum: "1002", SubOrders: []portal.SubOrder{{SubOrderNum: "1002_1"}}}}},
		{Orders: nil},
	}
	h.client.orders[1] = op
	h.client.returns["intransit"] = portal.ReturnsPage{
		Data:       []portal.ReturnClaim{{OrderNum: "2001", SubOrderNum: "2001_1"}},
		TotalPages: 1,
	}
	var pp portal.PayoutsPage
	pp.Response.Count = 1
	pp.Response.Items = []portal.Payout{{OrderNum: "3001", SubOrderNum: "3001_1", PaymentDate: "2026-10-15", LiveOrderStatus: "Delivered"}}
	h.client.payouts["2026-10-15/paid"] = pp

	rep, err := h.syncer.Run(context.Background(), cred)
	require.NoError(t, err)

	require.Equal(t, StateDone, rep.State)
	require.NotEqual(t, uuid.Nil, rep.RunID)
	require.Equal(t, int64(625), rep.UserID)
	require.Equal(t, "ident-42", rep.Supplier)
	require.Equal(t, int64(2), rep.Orders)
	require.Equal(t, int64(1), rep.Returns)
	require.Equal(t, int64(1), rep.Payouts)
	require.Equal(t, int64(1), rep.Payments)
	require.Equal(t, 1, rep.Skipped)
	require.Empty(t, rep.Err)
	require.Equal(t, fixedNow, rep.StartedAt)

	require.Equal(t, "seller@shop.in", h.opener.email)
	require.Equal(t, "secret", h.opener.password)
	require.Equal(t, 1, h.opener.sess.closes)

	want := []string{
		"getUser",
		"orders:1", "orders:3", "orders:4", "orders:5",
		"returns:intransit", "returns:ofd_reverse", "returns:completed_delivered",
		"returns:completed_lost", "returns:reverse_disposed",
		"payouts:2026-10-15/paid",
	}
	for d := 0; d < 12; d++ {
		want = append(want, "payouts:"+fixedNow.AddDate(0, 0, d).Format("2006-01-02")+"/pending")
	}
	require.Equal(t, want, h.client.calls)
	require.Equal(t, "payouts:2026-10-27/pending", want[len(want)-1])

	require.Equal(t, 4, h.store.orders)
	require.Equal(t, 5, h.store.returns)
	require.Equal(t, 13, h.store.payouts)
	require.Equal(t, repo.StatusPending, h.store.lastOrders[0].Status)
	require.Equal(t, "Delivered", h.store.lastPayments[0].Status)

	require.Len(t, h.sleeps, 3+4+12)
	for _, d := range h.sleeps {
		require.Equal(t, 2*time.Second, d)
	}

	require.Equal(t, 1.0, h.metrics.Value(metrics.MetricAccountRuns, map[string]string{"state": "done"}))
	require.Equal(t, 1.0, h.metrics.Value(metrics.MetricRowsWritten, map[string]string{"pass": "payouts", "table": "payments"}))
	require.Equal(t, 1.0, h.metrics.Value(metrics.MetricPassDuration, map[string]string{"pass": "returns"}))
}

func Test_Run_LoginFailure_Aborted(t *testing.T) {
	h := newHarness()
	h.opener.err = &browser.AuthError{Step: "submit", Err: context.DeadlineExceeded}

	rep, err := h.syncer.Run(context.Background(), cred)
	var ae *browser.AuthError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, "submit", ae.Step)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Equal(t, StateAborted, rep.State)
	require.NotEmpty(t, rep.Err)
	require.Empty(t, h.client.calls)
	require.Zero(t, h.store.orders)
	require.Zero(t, h.opener.sess.closes)
	require.Equal(t, 1.0, h.metrics.Value(metrics.MetricAccountRuns, map[string]string{"state": "aborted"}))
}

func Test_Run_NoSupplier_SoftStop(t *testing.T) {
	h := newHarness()
	h.client.userErr = portal.ErrNoSupplier

	rep, err := h.syncer.Run(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, StateAborted, rep.State)
	require.True(t, rep.NoSupplier)
	require.Empty(t, rep.Err)
	require.Equal(t, []string{"getUser"}, h.client.calls)
	require.Zero(t, h.store.orders+h.store.returns+h.store.payouts)
	require.Equal(t, 1, h.opener.sess.closes)
}

func Test_Run_GetUserError(t *testing.T) {
	h := newHarness()
	h.client.userErr = portal.NewStatusError(portal.PathGetUser, 401, nil)

	rep, err := h.syncer.Run(context.Background(), cred)
	require.ErrorContains(t, err, "get user")
	var se *portal.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StateAborted, rep.State)
	require.Equal(t, 1, h.opener.sess.closes)
}

func Test_Run_FetchFailure_SkipsRemainingPasses(t *testing.T) {
	h := newHarness()
	boom := errors.New("boom")
	h.client.returnsErr["ofd_reverse"] = boom

	rep, err := h.syncer.Run(context.Background(), cred)
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "returns pass")
	require.Equal(t, StateAborted, rep.State)

	require.Equal(t, 4, h.store.orders)
	require.Equal(t, 1, h.store.returns)
	require.Zero(t, h.store.payouts)
	for _, c := range h.client.calls {
		require.NotContains(t, c, "payouts:")
	}
	require.Equal(t, 1, h.opener.sess.closes)
}

func Test_Run_StoreFailure_Aborted(t *testing.T) {
	h := newHarness()
	h.store.failOrders = errors.New("db down")

	rep, err := h.syncer.Run(context.Background(), cred)
	require.ErrorContains(t, err, "orders pass: save orders pending: db down")
	require.Equal(t, StateAborted, rep.State)
	require.Equal(t, []string{"getUser", "orders:1"}, h.client.calls)
	require.Equal(t, 1, h.opener.sess.closes)
}

func Test_Run_CancelledDuringPause(t *testing.T) {
	h := newHarness()
	h.syncer.Sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	rep, err := h.syncer.Run(context.Background(), cred)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateAborted, rep.State)
	require.Equal(t, []string{"getUser", "orders:1"}, h.client.calls)
	require.Equal(t, 1, h.opener.sess.closes)
}

func Test_payoutSchedule(t *testing.T) {
	got := payoutSchedule(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), 3)
	require.Equal(t, []payoutSlot{
		{Date: "2026-02-28", Status: "paid"},
		{Date: "2026-03-01", Status: "pending"},
		{Date: "2026-03-02", Status: "pending"},
		{Date: "2026-03-03", Status: "pending"},
	}, got)

	ist := time.FixedZone("IST", 5*3600+1800)
	got = payoutSchedule(time.Date(2026, 3, 1, 2, 0, 0, 0, ist), 1)
	require.Equal(t, []payoutSlot{
		{Date: "2026-02-27", Status: "paid"},
		{Date: "2026-02-28", Status: "pending"},
	}, got)
}

func Test_New_Defaults(t *testing.T) {
	s := New(nil, nil, Config{PassDelay: -1}, nil, nil)
	require.Equal(t, DefaultPassDelay, s.cfg.PassDelay)
	require.Equal(t, DefaultPayoutDays, s.cfg.PayoutDays)
	require.NotNil(t, s.cfg.Retry)
	require.NotNil(t, s.NewClient(nil))
}
