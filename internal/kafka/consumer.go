// Package kafka consumes on-demand sync triggers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mrussa/meeshosync/internal/accountsync"
	"github.com/mrussa/meeshosync/internal/backoff"
	"github.com/mrussa/meeshosync/internal/repo"
	"github.com/mrussa/meeshosync/internal/scheduler"
)

// Trigger asks for an immediate sync of one account.
type Trigger struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

type AccountSyncer interface {
	SyncAccount(ctx context.Context, userID int64) (accountsync.Report, error)
}

type reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

const (
	minBytes        = 1
	maxBytes        = 1 << 20
	retryBase       = 2 * time.Second
	defaultAttempts = 3
)

var newReader = func(cfg kafka.ReaderConfig) reader { return kafka.NewReader(cfg) }

type Decoder func([]byte, *Trigger) error
type Validator func(*Trigger) error

func defaultDecode(b []byte, t *Trigger) error { return json.Unmarshal(b, t) }

var triggerValidator = func() *validator.Validate {
	vd := validator.New(validator.WithRequiredStructEnabled())
	vd.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return vd
}()

func defaultValidate(t *Trigger) error {
	err := triggerValidator.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("field %s: failed %s", fe.Field(), fe.Tag())
	}
	return err
}

type Consumer struct {
	Brokers []string
	Topic   string
	Group   string

	Sync AccountSyncer
	Log  *zap.Logger

	Decode   Decoder
	Validate Validator

	RetryBase time.Duration
	Attempts  int
	Sleep     func(ctx context.Context, d time.Duration) error
}

func NewConsumer(brokers []string, topic, group string, s AccountSyncer, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		Brokers:   brokers,
		Topic:     topic,
		Group:     group,
		Sync:      s,
		Log:       log,
		Decode:    defaultDecode,
		Validate:  defaultValidate,
		RetryBase: retryBase,
		Attempts:  defaultAttempts,
		Sleep:     backoff.Sleep,
	}
}

// Run blocks until the reader fails or ctx is cancelled. Triggers are
// handled one at a time and committed only once handled.
func (c *Consumer) Run(ctx context.Context) error {
	r := newReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.Group,
		Topic:          c.Topic,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: 0,
	})
	defer r.Close()

	c.Log.Info("trigger consumer started",
		zap.String("group", c.Group),
		zap.String("topic", c.Topic),
		zap.Strings("brokers", c.Brokers),
	)

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.Log.Info("trigger consumer stopped")
				return err
			}
			c.Log.Error("fetch trigger", zap.Error(err))
			return err
		}
		c.handleMessage(ctx, r, msg)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, r reader, msg kafka.Message) {
	log := c.Log.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var tr Trigger
	if err := c.Decode(msg.Value, &tr); err != nil {
		log.Warn("bad trigger json, skipped", zap.Error(err))
		c.commit(ctx, r, msg, log)
		return
	}
	if len(msg.Key) > 0 && string(msg.Key) != strconv.FormatInt(tr.UserID, 10) {
		log.Warn("trigger key/payload mismatch",
			zap.ByteString("key", msg.Key),
			zap.Int64("user_id", tr.UserID),
		)
	}
	if err := c.Validate(&tr); err != nil {
		log.Warn("invalid trigger, skipped", zap.Error(err))
		c.commit(ctx, r, msg, log)
		return
	}
	log = log.With(zap.Int64("user_id", tr.UserID), zap.String("reason", tr.Reason))

	attempts := max(c.Attempts, 1)
	for attempt := 1; ; attempt++ {
		rep, err := c.Sync.SyncAccount(ctx, tr.UserID)
		switch {
		case err == nil:
			log.Info("triggered sync finished", zap.String("state", string(rep.State)))
			c.commit(ctx, r, msg, log)
			return
		case errors.Is(err, scheduler.ErrAccountBusy):
			log.Info("account already syncing, trigger dropped")
			c.commit(ctx, r, msg, log)
			return
		case errors.Is(err, repo.ErrNotFound):
			log.Warn("no credentials for account, trigger dropped")
			c.commit(ctx, r, msg, log)
			return
		case rep.State != "":
			// The run happened; its failure lives in the status registry.
			log.Warn("triggered sync failed", zap.String("state", string(rep.State)), zap.Error(err))
			c.commit(ctx, r, msg, log)
			return
		case ctx.Err() != nil:
			return
		}

		if attempt >= attempts {
			log.Error("trigger not handled, left uncommitted", zap.Int("attempts", attempt), zap.Error(err))
			return
		}
		log.Warn("trigger attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		if c.Sleep(ctx, c.delay(attempt)) != nil {
			return
		}
	}
}

func (c *Consumer) commit(ctx context.Context, r reader, msg kafka.Message, log *zap.Logger) {
	if err := r.CommitMessages(ctx, msg); err != nil {
		log.Error("commit trigger", zap.Error(err))
	}
}

func (c *Consumer) delay(attempt int) time.Duration {
	return c.RetryBase*time.Duration(attempt) + rand.N(200*time.Millisecond)
}
