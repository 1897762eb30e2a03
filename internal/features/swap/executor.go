package swap

// Swap Executor: buys a fixed native amount of a token through the DEX aggregator
// EVM: aggregator tx -> sign and broadcast
// SOL: wrap native into wSOL -> aggregator instructions -> sign and broadcast

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/clients_api/okx"
	logging "airdrop-bot/internal/infra/log"
	"airdrop-bot/internal/infra/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Aggregator is the route source, *okx.Client in production.
type Aggregator interface {
	Swap(ctx context.Context, req okx.SwapRequest) (*chain.SwapPayload, error)
	SwapInstructions(ctx context.Context, req okx.SwapRequest) (*chain.SwapPayload, error)
}

// Quoter is optionally implemented by the aggregator; the quote is only logged.
type Quoter interface {
	Quote(ctx context.Context, req okx.SwapRequest) (*okx.QuoteResult, error)
}

// SwapError - Stage is one of "route", "prepare", "submit"
type SwapError struct {
	Chain    chain.Chain
	Contract string
	Stage    string
	Err      error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("swap %s on %s failed at %s: %v", e.Contract, e.Chain, e.Stage, e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

// Leg is the per-chain buy size and slippage.
type Leg struct {
	NativeAmount    *big.Int
	SlippagePercent float64
}

type Executor struct {
	adapters   chain.Adapters
	aggregator Aggregator
	legs       map[chain.Chain]Leg
	metrics    *metrics.Metrics
}

func NewExecutor(adapters chain.Adapters, aggregator Aggregator, legs map[chain.Chain]Leg, m *metrics.Metrics) *Executor {
	return &Executor{adapters: adapters, aggregator: aggregator, legs: legs, metrics: m}
}

// Execute buys contract on c and returns the swap transaction id.
// Failures are never retried.
func (e *Executor) Execute(ctx context.Context, c chain.Chain, contract string) (txID string, err error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Swaps.WithLabelValues(c.String(), metrics.Outcome(err)).Inc()
		}
	}()

	adapter, err := e.adapters.Get(c)
	if err != nil {
		return "", &SwapError{Chain: c, Contract: contract, Stage: "route", Err: err}
	}
	leg, ok := e.legs[c]
	if !ok || leg.NativeAmount == nil || leg.NativeAmount.Sign() <= 0 {
		return "", &SwapError{Chain: c, Contract: contract, Stage: "route", Err: fmt.Errorf("no swap amount configured")}
	}

	req := okx.SwapRequest{
		Chain:           c,
		FromToken:       adapter.NativeAsset(),
		ToToken:         contract,
		Amount:          leg.NativeAmount.String(),
		SlippagePercent: leg.SlippagePercent,
		Wallet:          adapter.WalletAddress(),
	}

	logging.LogInfo("Swap started",
		zap.String("chain", c.String()),
		zap.String("contract", contract),
		zap.String("amount", req.Amount))
	e.logQuote(ctx, req, leg.NativeAmount)

	var payload *chain.SwapPayload
	switch c {
	case chain.SOL:
		if err := adapter.PrepareSwap(ctx, leg.NativeAmount); err != nil {
			return "", &SwapError{Chain: c, Contract: contract, Stage: "prepare", Err: err}
		}
		payload, err = e.aggregator.SwapInstructions(ctx, req)
	default:
		payload, err = e.aggregator.Swap(ctx, req)
	}
	if err != nil {
		return "", &SwapError{Chain: c, Contract: contract, Stage: "route", Err: err}
	}

	txID, err = adapter.SubmitSwap(ctx, *payload)
	if err != nil {
		return "", &SwapError{Chain: c, Contract: contract, Stage: "submit", Err: err}
	}

	logging.LogSuccess("Swap submitted",
		zap.String("chain", c.String()),
		zap.String("contract", contract),
		zap.String("tx", txID),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return txID, nil
}

// nativeDecimals of the coin each leg spends
var nativeDecimals = map[chain.Chain]uint8{chain.EVM: 18, chain.SOL: 9}

func (e *Executor) logQuote(ctx context.Context, req okx.SwapRequest, amount *big.Int) {
	q, ok := e.aggregator.(Quoter)
	if !ok {
		return
	}
	res, err := q.Quote(ctx, req)
	if err != nil {
		logging.LogWarn("Swap quote unavailable", zap.String("chain", req.Chain.String()), zap.Error(err))
		return
	}
	price, err := res.FromTokenUnitPrice()
	if err != nil {
		logging.LogWarn("Swap quote has no unit price", zap.String("chain", req.Chain.String()), zap.Error(err))
		return
	}
	spent := chain.FromBaseUnits(amount, nativeDecimals[req.Chain])
	logging.LogInfo("Swap quote",
		zap.String("chain", req.Chain.String()),
		zap.String("contract", req.ToToken),
		zap.Float64("native_usd", price),
		zap.String("spend_usd", spent.Mul(decimal.NewFromFloat(price)).StringFixed(2)))
}
