package orchestrator

// Routes chat intents to the features
// admin: decimals -> swap -> settlement (background) -> registry + announcement
// user:  quota gate -> token list -> pick -> wallet -> transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/features/notices"
	"airdrop-bot/internal/features/quota"
	"airdrop-bot/internal/features/registry"
	"airdrop-bot/internal/features/settlement"
	logging "airdrop-bot/internal/infra/log"
	"airdrop-bot/internal/infra/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrQuotaExceeded  = errors.New("daily send limit reached")
	ErrNoSession      = errors.New("no open send session, start again with /send")
	ErrNoTokens       = errors.New("no tokens registered yet")
	ErrNoAnnouncement = errors.New("no pending announcement for symbol")
)

type Swapper interface {
	Execute(ctx context.Context, c chain.Chain, contract string) (string, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, task settlement.Task) <-chan settlement.Result
}

type Announcements interface {
	Get(symbol string) (notices.Announcement, bool)
}

type Config struct {
	// Waits is the settlement delay per chain.
	Waits      map[chain.Chain]time.Duration
	SessionTTL time.Duration
}

type session struct {
	expires time.Time
	symbol  string
}

type Orchestrator struct {
	adapters      chain.Adapters
	swapper       Swapper
	scheduler     Scheduler
	registry      *registry.Registry
	quota         quota.Tracker
	announcements Announcements
	metrics       *metrics.Metrics
	cfg           Config

	mu       sync.Mutex
	sessions map[string]session
	now      func() time.Time
}

func New(adapters chain.Adapters, swapper Swapper, scheduler Scheduler, reg *registry.Registry,
	tracker quota.Tracker, announcements Announcements, m *metrics.Metrics, cfg Config) *Orchestrator {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 60 * time.Second
	}
	return &Orchestrator{
		adapters:      adapters,
		swapper:       swapper,
		scheduler:     scheduler,
		registry:      reg,
		quota:         tracker,
		announcements: announcements,
		metrics:       m,
		cfg:           cfg,
		sessions:      map[string]session{},
		now:           time.Now,
	}
}

// WithClock replaces time.Now for session expiry.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Registration is returned as soon as the swap is broadcast.
type Registration struct {
	Symbol   string
	Chain    chain.Chain
	Contract string
	Decimals uint8
	TxID     string
	Explorer string
	Result   <-chan settlement.Result
}

// Register buys contract and schedules its settlement.
func (o *Orchestrator) Register(ctx context.Context, c chain.Chain, symbol, contract string) (*Registration, error) {
	symbol = strings.TrimSpace(symbol)
	contract = strings.TrimSpace(contract)
	if symbol == "" || contract == "" {
		return nil, fmt.Errorf("symbol and contract are required")
	}
	adapter, err := o.adapters.Get(c)
	if err != nil {
		return nil, err
	}

	decimals, err := adapter.GetDecimals(ctx, contract)
	if err != nil {
		return nil, err
	}

	txID, err := o.swapper.Execute(ctx, c, contract)
	if err != nil {
		return nil, err
	}

	result := o.scheduler.Schedule(ctx, settlement.Task{
		Chain:    c,
		Symbol:   symbol,
		Contract: contract,
		Decimals: decimals,
		TxID:     txID,
		Wait:     o.cfg.Waits[c],
	})

	logging.LogInfo("Registration started",
		zap.String("symbol", symbol),
		zap.String("chain", c.String()),
		zap.String("contract", contract),
		zap.Uint8("decimals", decimals),
		zap.String("tx", txID))

	return &Registration{
		Symbol:   symbol,
		Chain:    c,
		Contract: contract,
		Decimals: decimals,
		TxID:     txID,
		Explorer: chain.ExplorerTxURL(c, txID),
		Result:   result,
	}, nil
}

// RegisterAnnounced registers a pending announcement by symbol.
func (o *Orchestrator) RegisterAnnounced(ctx context.Context, symbol string) (*Registration, error) {
	if o.announcements == nil {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoAnnouncement)
	}
	a, ok := o.announcements.Get(symbol)
	if !ok || a.Status != notices.StatusPending {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoAnnouncement)
	}
	return o.Register(ctx, a.Chain, a.Symbol, a.Contract)
}

// RegisterManual stores a token with a fixed per-recipient amount, no swap.
func (o *Orchestrator) RegisterManual(ctx context.Context, c chain.Chain, symbol, contract string, amount decimal.Decimal) (registry.Record, error) {
	if amount.IsNegative() {
		return registry.Record{}, fmt.Errorf("amount must not be negative")
	}
	adapter, err := o.adapters.Get(c)
	if err != nil {
		return registry.Record{}, err
	}
	decimals, err := adapter.GetDecimals(ctx, strings.TrimSpace(contract))
	if err != nil {
		return registry.Record{}, err
	}

	rec := registry.Record{Chain: c, Address: strings.TrimSpace(contract), Decimals: decimals, Amount: amount}
	if err := o.registry.Register(symbol, rec); err != nil {
		return registry.Record{}, err
	}
	if o.metrics != nil {
		o.metrics.RegisteredSize.Set(float64(o.registry.Len()))
	}
	return rec, nil
}

// RequestSend consumes one quota unit and opens a send session.
// The unit stays consumed even when no token is registered.
func (o *Orchestrator) RequestSend(ctx context.Context, userID string) ([]registry.Entry, error) {
	ok, err := o.quota.TryConsume(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if o.metrics != nil {
			o.metrics.QuotaDenials.Inc()
		}
		logging.LogInfo("Send refused by quota", zap.String("user", userID))
		return nil, ErrQuotaExceeded
	}

	tokens := o.registry.List()
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	o.mu.Lock()
	o.sessions[userID] = session{expires: o.now().Add(o.cfg.SessionTTL)}
	o.mu.Unlock()
	return tokens, nil
}

// Pick records the token chosen in an open session.
func (o *Orchestrator) Pick(userID, symbol string) (registry.Record, error) {
	rec, err := o.registry.Lookup(symbol)
	if err != nil {
		return registry.Record{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[userID]
	if !ok || o.now().After(s.expires) {
		delete(o.sessions, userID)
		return registry.Record{}, ErrNoSession
	}
	s.symbol = registry.Key(symbol)
	o.sessions[userID] = s
	return rec, nil
}

// PickedSymbol is the symbol chosen in the user's open session, if any.
func (o *Orchestrator) PickedSymbol(userID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[userID]
	if !ok || s.symbol == "" || o.now().After(s.expires) {
		return "", false
	}
	return s.symbol, true
}

type Distribution struct {
	Symbol   string
	Amount   decimal.Decimal
	Decimals uint8
	TxID     string
	Explorer string
}

// SubmitWallet sends the registered amount of symbol to address and closes the session.
// An empty symbol uses the one picked in the session.
func (o *Orchestrator) SubmitWallet(ctx context.Context, userID, symbol, address string) (*Distribution, error) {
	o.mu.Lock()
	s, ok := o.sessions[userID]
	delete(o.sessions, userID)
	o.mu.Unlock()
	if !ok || o.now().After(s.expires) {
		return nil, ErrNoSession
	}
	if symbol == "" {
		symbol = s.symbol
	}

	rec, err := o.registry.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	adapter, err := o.adapters.Get(rec.Chain)
	if err != nil {
		return nil, err
	}

	address = strings.TrimSpace(address)
	txID, err := adapter.Transfer(ctx, rec.Address, address, rec.Amount, rec.Decimals)
	if o.metrics != nil {
		o.metrics.Transfers.WithLabelValues(rec.Chain.String(), metrics.Outcome(err)).Inc()
	}
	if err != nil {
		logging.LogError("Distribution transfer failed",
			zap.String("user", userID),
			zap.String("symbol", registry.Key(symbol)),
			zap.Error(err))
		return nil, err
	}

	logging.LogSuccess("Distribution sent",
		zap.String("user", userID),
		zap.String("symbol", registry.Key(symbol)),
		zap.String("amount", rec.Amount.String()),
		zap.String("tx", txID))

	return &Distribution{
		Symbol:   registry.Key(symbol),
		Amount:   rec.Amount,
		Decimals: rec.Decimals,
		TxID:     txID,
		Explorer: chain.ExplorerTxURL(rec.Chain, txID),
	}, nil
}
