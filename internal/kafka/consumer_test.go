package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/mrussa/meeshosync/internal/accountsync"
	"github.com/mrussa/meeshosync/internal/repo"
	"github.com/mrussa/meeshosync/internal/scheduler"
)

type step struct {
	msg kafka.Message
	err error
}

type fakeReader struct {
	steps       []step
	i           int
	closed      bool
	commits     []kafka.Message
	commitErrAt int
	commitCalls int
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if f.i >= len(f.steps) {
		return kafka.Message{}, context.Canceled
	}
	s := f.steps[f.i]
	f.i++
	if s.err != nil {
		return kafka.Message{}, s.err
	}
	return s.msg, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.commits = append(f.commits, msgs...)
	f.commitCalls++
	if f.commitErrAt != 0 && f.commitCalls == f.commitErrAt {
		return errors.New("commit-err")
	}
	return nil
}

func (f *fakeReader) Close() error { f.closed = true; return nil }

type result struct {
	rep accountsync.Report
	err error
}

type stubSyncer struct {
	results []result
	calls   []int64
}

func (s *stubSyncer) SyncAccount(_ context.Context, userID int64) (accountsync.Report, error) {
	s.calls = append(s.calls, userID)
	i := len(s.calls) - 1
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	if i < 0 {
		return accountsync.Report{UserID: userID, State: accountsync.StateDone}, nil
	}
	return s.results[i].rep, s.results[i].err
}

func trigger(id int64) []byte {
	return []byte(fmt.Sprintf(`{"user_id":%d,"reason":"manual"}`, id))
}

func newTestConsumer(s AccountSyncer) (*Consumer, *[]time.Duration) {
	c := NewConsumer([]string{"dummy:9092"}, "t", "g", s, nil)
	c.RetryBase = time.Second
	var sleeps []time.Duration
	c.Sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func withReader(t *testing.T, fr *fakeReader, c *Consumer) error {
	t.Helper()
	orig := newReader
	newReader = func(cfg kafka.ReaderConfig) reader {
		require.Equal(t, "g", cfg.GroupID)
		require.Equal(t, "t", cfg.Topic)
		return fr
	}
	defer func() { newReader = orig }()
	return c.Run(context.Background())
}

func Test_NewConsumer(t *testing.T) {
	s := &stubSyncer{}
	got := NewConsumer([]string{"k1:9092", "k2:9092"}, "topic", "group", s, nil)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, got.Brokers)
	require.Equal(t, "topic", got.Topic)
	require.Equal(t, "group", got.Group)
	require.Same(t, s, got.Sync)
	require.NotNil(t, got.Log)
	require.NotNil(t, got.Decode)
	require.NotNil(t, got.Validate)
	require.NotNil(t, got.Sleep)
	require.Equal(t, retryBase, got.RetryBase)
	require.Equal(t, defaultAttempts, got.Attempts)
}

func Test_defaultValidate_OK_and_Errors(t *testing.T) {
	require.NoError(t, defaultValidate(&Trigger{UserID: 1}))
	require.NoError(t, defaultValidate(&Trigger{UserID: 1, Reason: "ops"}))

	require.EqualError(t, defaultValidate(&Trigger{}), "field user_id: failed required")
	require.EqualError(t, defaultValidate(&Trigger{UserID: -4}), "field user_id: failed gt")

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}
	require.EqualError(t, defaultValidate(&Trigger{UserID: 1, Reason: string(long)}), "field reason: failed max")
}

func Test_delay_GrowsWithAttempt(t *testing.T) {
	c := &Consumer{RetryBase: time.Second}
	d1 := c.delay(1)
	d2 := c.delay(2)
	require.GreaterOrEqual(t, d1, time.Second)
	require.Less(t, d1, time.Second+200*time.Millisecond)
	require.GreaterOrEqual(t, d2, 2*time.Second)
}

func Test_Run_FetchCanceled(t *testing.T) {
	fr := &fakeReader{steps: []step{{err: context.Canceled}}}
	c, _ := newTestConsumer(&stubSyncer{})
	err := withReader(t, fr, c)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, fr.closed)
}

func Test_Run_FetchOtherError(t *testing.T) {
	fr := &fakeReader{steps: []step{{err: errors.New("boom")}}}
	c, _ := newTestConsumer(&stubSyncer{})
	require.EqualError(t, withReader(t, fr, c), "boom")
}

func Test_Run_BadJSON_CommitsAndContinues(t *testing.T) {
	s := &stubSyncer{}
	fr := &fakeReader{
		steps: []step{
			{msg: kafka.Message{Topic: "t", Offset: 1, Value: []byte("not-json")}},
			{msg: kafka.Message{Topic: "t", Offset: 2, Value: trigger(5)}},
			{err: context.Canceled},
		},
	}
	c, _ := newTestConsumer(s)
	require.ErrorIs(t, withReader(t, fr, c), context.Canceled)
	require.Len(t, fr.commits, 2)
	require.Equal(t, int64(1), fr.commits[0].Offset)
	require.Equal(t, []int64{5}, s.calls)
}

func Test_Run_InvalidTrigger_CommitsAndSkipsSync(t *testing.T) {
	s := &stubSyncer{}
	fr := &fakeReader{
		steps: []step{
			{msg: kafka.Message{Topic: "t", Offset: 2, Value: []byte(`{"user_id":0}`)}},
			{err: context.Canceled},
		},
	}
	c, _ := newTestConsumer(s)
	require.ErrorIs(t, withReader(t, fr, c), context.Canceled)
	require.Len(t, fr.commits, 1)
	require.Empty(t, s.calls)
}

func Test_handleMessage_Success_Commits(t *testing.T) {
	s := &stubSyncer{}
	fr := &fakeReader{}
	c, sleeps := newTestConsumer(s)

	c.handleMessage(context.Background(), fr, kafka.Message{Offset: 10, Key: []byte("99"), Value: trigger(42)})

	require.Equal(t, []int64{42}, s.calls, "SyncAccount должен быть вызван ровно один раз")
	require.Equal(t, 1, fr.commitCalls, "должна быть одна попытка коммита")
	require.Empty(t, *sleeps)
}

func Test_handleMessage_PermanentOutcomes_Commit(t *testing.T) {
	cases := map[string]result{
		"busy":    {err: scheduler.ErrAccountBusy},
		"unknown": {err: fmt.Errorf("credential 42: %w", repo.ErrNotFound)},
		"run failed": {
			rep: accountsync.Report{UserID: 42, State: accountsync.StateAborted},
			err: errors.New("login: bad password"),
		},
	}
	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			s := &stubSyncer{results: []result{res}}
			fr := &fakeReader{}
			c, sleeps := newTestConsumer(s)

			c.handleMessage(context.Background(), fr, kafka.Message{Value: trigger(42)})

			require.Len(t, s.calls, 1, "повторов быть не должно")
			require.Equal(t, 1, fr.commitCalls)
			require.Empty(t, *sleeps)
		})
	}
}

func Test_handleMessage_TransientError_RetriesThenSucceeds(t *testing.T) {
	s := &stubSyncer{results: []result{
		{err: errors.New("credential 42: conn reset")},
		{rep: accountsync.Report{UserID: 42, State: accountsync.StateDone}},
	}}
	fr := &fakeReader{}
	c, sleeps := newTestConsumer(s)

	c.handleMessage(context.Background(), fr, kafka.Message{Value: trigger(42)})

	require.Len(t, s.calls, 2)
	require.Len(t, *sleeps, 1)
	require.GreaterOrEqual(t, (*sleeps)[0], time.Second)
	require.Equal(t, 1, fr.commitCalls)
}

func Test_handleMessage_TransientError_NoCommitAfterAttempts(t *testing.T) {
	s := &stubSyncer{results: []result{{err: errors.New("db down")}}}
	fr := &fakeReader{}
	c, sleeps := newTestConsumer(s)

	c.handleMessage(context.Background(), fr, kafka.Message{Value: trigger(42)})

	require.Len(t, s.calls, defaultAttempts)
	require.Len(t, *sleeps, defaultAttempts-1)
	require.Equal(t, 0, fr.commitCalls, "коммита быть не должно при ошибке синхронизации")
}

func Test_handleMessage_CancelledContext_NoRetryNoCommit(t *testing.T) {
	s := &stubSyncer{results: []result{{err: context.Canceled}}}
	fr := &fakeReader{}
	c, sleeps := newTestConsumer(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.handleMessage(ctx, fr, kafka.Message{Value: trigger(42)})

	require.Len(t, s.calls, 1)
	require.Empty(t, *sleeps)
	require.Equal(t, 0, fr.commitCalls)
}

func Test_handleMessage_SleepInterrupted(t *testing.T) {
	s := &stubSyncer{results: []result{{err: errors.New("db down")}}}
	fr := &fakeReader{}
	c, _ := newTestConsumer(s)
	c.Sleep = func(context.Context, time.Duration) error { return context.Canceled }

	c.handleMessage(context.Background(), fr, kafka.Message{Value: trigger(42)})

	require.Len(t, s.calls, 1)
	require.Equal(t, 0, fr.commitCalls)
}

func Test_handleMessage_CommitError_NoPanic(t *testing.T) {
	fr := &fakeReader{commitErrAt: 1}
	c, _ := newTestConsumer(&stubSyncer{})

	require.NotPanics(t, func() {
		c.handleMessage(context.Background(), fr, kafka.Message{Value: trigger(1)})
	})
	require.Equal(t, 1, fr.commitCalls, "должна быть хотя бы одна попытка коммита")
}

func Test_newReader_DefaultUsesKafkaNewReader(t *testing.T) {
	r := newReader(kafka.ReaderConfig{
		Brokers:        []string{"127.0.0.1:1"},
		GroupID:        "g",
		Topic:          "t",
		MinBytes:       1,
		MaxBytes:       1,
		CommitInterval: 0,
	})
	require.NoError(t, r.Close())
}
