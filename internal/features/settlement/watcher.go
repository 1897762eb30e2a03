package settlement

// Settlement Watcher: one-shot job per swap
// wait -> inspect (with backoff while nothing is credited) -> split per recipient -> registry -> finalize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/features/registry"
	logging "airdrop-bot/internal/infra/log"
	"airdrop-bot/internal/infra/metrics"
	"airdrop-bot/internal/infra/retry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrAmbiguous - nothing was credited once the retries ran out. The zero amount is still
// registered and a reviewer is flagged; it is not a task failure.
var ErrAmbiguous = errors.New("settlement ambiguous: no credit observed")

type Task struct {
	ID       string
	Chain    chain.Chain
	Symbol   string
	Contract string
	Decimals uint8
	TxID     string
	Wait     time.Duration
}

type Result struct {
	Task         Task
	Realized     decimal.Decimal
	PerRecipient decimal.Decimal
	Ambiguous    bool
	Err          error
}

type Store interface {
	Register(symbol string, rec registry.Record) error
	Len() int
}

// Finalizer marks the announcement of symbol as settled.
type Finalizer interface {
	Finalize(ctx context.Context, symbol string, perRecipient decimal.Decimal, decimals uint8) error
}

type Options struct {
	Recipients int
	// Retry bounds the re-inspection after the wait; RetryIf and Sleep are set by the watcher.
	Retry retry.Options
	Sleep func(ctx context.Context, d time.Duration) error
}

type Watcher struct {
	adapters   chain.Adapters
	store      Store
	finalizer  Finalizer
	recipients int
	retry      retry.Options
	sleep      func(ctx context.Context, d time.Duration) error
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
}

func NewWatcher(adapters chain.Adapters, store Store, finalizer Finalizer, opts Options, m *metrics.Metrics) *Watcher {
	if opts.Recipients <= 0 {
		opts.Recipients = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = retry.SleepContext
	}
	r := opts.Retry
	r.Sleep = sleep
	r.RetryIf = func(err error) bool { return err != nil }

	return &Watcher{
		adapters:   adapters,
		store:      store,
		finalizer:  finalizer,
		recipients: opts.Recipients,
		retry:      r,
		sleep:      sleep,
		metrics:    m,
	}
}

// Schedule starts task in the background. The channel receives exactly one Result.
// ctx bounds the task, cancelling it stops a pending wait; it must outlive the request that scheduled it.
func (w *Watcher) Schedule(ctx context.Context, task Task) <-chan Result {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	out := make(chan Result, 1)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		out <- w.run(ctx, task)
		close(out)
	}()
	return out
}

// Wait blocks until every scheduled task has finished.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context, task Task) (res Result) {
	res.Task = task
	logger := logging.TaskLogger(task.ID, task.Symbol)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("settlement task panicked: %v", r)
			logger.Error("Settlement task panicked", zap.Any("panic", r))
			logging.LogError("Settlement task panicked", zap.String("task_id", task.ID), zap.Any("panic", r))
		}
		if w.metrics != nil {
			outcome := metrics.Outcome(res.Err)
			if res.Err == nil && res.Ambiguous {
				outcome = "ambiguous"
			}
			w.metrics.Settlements.WithLabelValues(task.Chain.String(), outcome).Inc()
		}
	}()

	logger.Info("Settlement scheduled",
		zap.String("chain", task.Chain.String()),
		zap.String("tx", task.TxID),
		zap.Duration("wait", task.Wait))

	if err := w.sleep(ctx, task.Wait); err != nil {
		res.Err = fmt.Errorf("settlement wait interrupted: %w", err)
		logger.Warn("Settlement cancelled", zap.Error(err))
		return res
	}

	realized, err := w.inspect(ctx, task)
	switch {
	case err == nil:
	case errors.Is(err, ErrAmbiguous), errors.Is(err, chain.ErrNotSettled):
		res.Ambiguous = true
		realized = decimal.Zero
		logger.Warn("No credit observed, flagging for review", zap.Error(err))
	default:
		res.Err = err
		logger.Error("Settlement inspection failed", zap.Error(err))
		logging.LogError("Settlement inspection failed", zap.String("task_id", task.ID), zap.String("symbol", task.Symbol), zap.Error(err))
		return res
	}

	res.Realized = realized
	res.PerRecipient = PerRecipient(realized, w.recipients)

	rec := registry.Record{
		Chain:    task.Chain,
		Address:  task.Contract,
		Decimals: task.Decimals,
		Amount:   res.PerRecipient,
	}
	if err := w.store.Register(task.Symbol, rec); err != nil {
		res.Err = err
		logger.Error("Registry write failed", zap.Error(err))
		return res
	}
	if w.metrics != nil {
		w.metrics.RegisteredSize.Set(float64(w.store.Len()))
	}

	if w.finalizer != nil {
		if err := w.finalizer.Finalize(ctx, task.Symbol, res.PerRecipient, task.Decimals); err != nil {
			// registry already holds the amount; only the announcement edit is lost
			logger.Warn("Announcement finalize failed", zap.Error(err))
		}
	}

	logger.Info("Settlement completed",
		zap.String("realized", realized.String()),
		zap.String("per_recipient", res.PerRecipient.String()),
		zap.Bool("ambiguous", res.Ambiguous))
	logging.LogSuccess("Token settled",
		zap.String("symbol", task.Symbol),
		zap.String("per_recipient", res.PerRecipient.String()))
	return res
}

func (w *Watcher) inspect(ctx context.Context, task Task) (decimal.Decimal, error) {
	adapter, err := w.adapters.Get(task.Chain)
	if err != nil {
		return decimal.Zero, err
	}

	var realized decimal.Decimal
	err = retry.Do(ctx, w.retry, func() error {
		amount, err := adapter.InspectSettlement(ctx, task.TxID, task.Contract, task.Decimals)
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			return ErrAmbiguous
		}
		realized = amount
		return nil
	})
	return realized, err
}

// PerRecipient is realized / recipients, unrounded. Transfers truncate to base units.
func PerRecipient(realized decimal.Decimal, recipients int) decimal.Decimal {
	if recipients <= 0 {
		recipients = 1
	}
	return realized.Div(decimal.NewFromInt(int64(recipients)))
}
