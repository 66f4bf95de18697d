// Package scheduler drives account syncs at startup, on a fixed interval and
// on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mrussa/meeshosync/internal/accountsync"
	"github.com/mrussa/meeshosync/internal/backoff"
	"github.com/mrussa/meeshosync/internal/metrics"
	"github.com/mrussa/meeshosync/internal/repo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultInterval  = time.Minute
	DefaultStoreName = "Meesho"
)

var ErrAccountBusy = errors.New("account sync already running")

type Credentials interface {
	ListCredentials(ctx context.Context, store string) ([]repo.Credential, error)
	GetCredential(ctx context.Context, store string, userID int64) (repo.Credential, error)
}

type Runner interface {
	Run(ctx context.Context, cred repo.Credential) (accountsync.Report, error)
}

type Recorder interface {
	Set(rep accountsync.Report)
}

type Config struct {
	Interval     time.Duration
	StoreName    string
	AccountDelay time.Duration
	Concurrency  int
	MaxBrowsers  int
}

type Scheduler struct {
	creds   Credentials
	runner  Runner
	status  Recorder
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.Logger

	browsers *semaphore.Weighted
	running  atomic.Bool

	mu       sync.Mutex
	inflight map[int64]struct{}

	// Decode turns stored credentials into login values; nil keeps them as is.
	Decode func(repo.Credential) (repo.Credential, error)
	Sleep  func(ctx context.Context, d time.Duration) error
}

func New(creds Credentials, runner Runner, status Recorder, cfg Config, m *metrics.Metrics, log *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StoreName == "" {
		cfg.StoreName = DefaultStoreName
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxBrowsers <= 0 {
		cfg.MaxBrowsers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		creds:    creds,
		runner:   runner,
		status:   status,
		cfg:      cfg,
		metrics:  m,
		log:      log,
		browsers: semaphore.NewWeighted(int64(cfg.MaxBrowsers)),
		inflight: make(map[int64]struct{}),
		Sleep:    backoff.Sleep,
	}
}

// Run starts a pass immediately and then on every interval tick until ctx
// is done. A tick that fires while a pass is still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Pass(ctx)
		}()
	}

	s.log.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Int("max_browsers", s.cfg.MaxBrowsers),
	)
	start()

	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.log.Info("scheduler stopped")
			return nil
		case <-t.C:
			start()
		}
	}
}

// Pass syncs every active account once. It reports false when it was
// skipped because another pass holds the slot.
func (s *Scheduler) Pass(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.TickSkipped()
		s.log.Warn("previous sync pass still running, tick skipped")
		return false
	}
	defer s.running.Store(false)

	started := time.Now()
	creds, err := s.creds.ListCredentials(ctx, s.cfg.StoreName)
	if err != nil {
		s.log.Error("list credentials", zap.String("store", s.cfg.StoreName), zap.Error(err))
		return true
	}
	s.log.Info("sync pass started", zap.Int("accounts", len(creds)))

	if s.cfg.Concurrency <= 1 {
		for i, c := range creds {
			if i > 0 {
				if err := s.Sleep(ctx, s.cfg.AccountDelay); err != nil {
					s.log.Warn("sync pass interrupted", zap.Error(err))
					return true
				}
			}
			_, _ = s.syncOne(ctx, c)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for _, c := range creds {
			g.Go(func() error {
				_, _ = s.syncOne(ctx, c)
				return nil
			})
		}
		_ = g.Wait()
	}

	s.log.Info("sync pass finished", zap.Int("accounts", len(creds)), zap.Duration("took", time.Since(started)))
	return true
}

// SyncAccount runs one account now. It returns ErrAccountBusy when that
// account is already being synced.
func (s *Scheduler) SyncAccount(ctx context.Context, userID int64) (accountsync.Report, error) {
	cred, err := s.creds.GetCredential(ctx, s.cfg.StoreName, userID)
	if err != nil {
		return accountsync.Report{}, fmt.Errorf("credential %d: %w", userID, err)
	}
	return s.syncOne(ctx, cred)
}

func (s *Scheduler) syncOne(ctx context.Context, cred repo.Credential) (rep accountsync.Report, err error) {
	log := s.log.With(zap.Int64("user_id", cred.UserID))
	if !s.claim(cred.UserID) {
		log.Warn("account sync already running")
		return accountsync.Report{}, ErrAccountBusy
	}
	defer s.unclaim(cred.UserID)

	if err := s.browsers.Acquire(ctx, 1); err != nil {
		return accountsync.Report{}, err
	}
	defer s.browsers.Release(1)

	started := time.Now().UTC()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("account %d: panic: %v", cred.UserID, p)
			rep = s.aborted(cred.UserID, started, err)
			log.Error("account sync panicked", zap.Any("panic", p))
		}
		if s.status != nil {
			s.status.Set(rep)
		}
	}()

	if s.Decode != nil {
		dec, derr := s.Decode(cred)
		if derr != nil {
			err = fmt.Errorf("credential %d: decode: %w", cred.UserID, derr)
			log.Error("credential decode failed", zap.Error(derr))
			return s.aborted(cred.UserID, started, err), err
		}
		cred = dec
	}
	return s.runner.Run(ctx, cred)
}

// aborted is the report for a run that ended before or outside the runner.
func (s *Scheduler) aborted(userID int64, started time.Time, err error) accountsync.Report {
	s.metrics.AccountRun(string(accountsync.StateAborted))
	return accountsync.Report{
		RunID:      uuid.New(),
		UserID:     userID,
		State:      accountsync.StateAborted,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Err:        err.Error(),
	}
}

func (s *Scheduler) claim(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[userID]; busy {
		return false
	}
	s.inflight[userID] = struct{}{}
	return true
}

func (s *Scheduler) unclaim(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, userID)
}

// Running lists the accounts currently being synced.
func (s *Scheduler) Running() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.inflight))
	for id := range s.inflight {
		out = append(out, id)
	}
	return out
}
