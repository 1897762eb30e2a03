package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/chain/chaintest"
	"airdrop-bot/internal/chat/chattest"
	"airdrop-bot/internal/clients_api/okx"
	"airdrop-bot/internal/features/notices"
	"airdrop-bot/internal/features/quota"
	"airdrop-bot/internal/features/registry"
	"airdrop-bot/internal/features/settlement"
	"airdrop-bot/internal/features/swap"
	"airdrop-bot/internal/infra/fs"
	"airdrop-bot/internal/infra/metrics"
	"airdrop-bot/internal/infra/retry"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routeAggregator struct{}

func (routeAggregator) Swap(ctx context.Context, req okx.SwapRequest) (*chain.SwapPayload, error) {
	return &chain.SwapPayload{To: "router", Value: req.Amount}, nil
}

func (routeAggregator) SwapInstructions(ctx context.Context, req okx.SwapRequest) (*chain.SwapPayload, error) {
	return &chain.SwapPayload{Instructions: []chain.Instruction{{ProgramID: "P"}}}, nil
}

type harness struct {
	sol       *chaintest.Adapter
	evm       *chaintest.Adapter
	reg       *registry.Registry
	publisher *notices.Publisher
	poster    *chattest.Poster
	slept     chan time.Duration
	metrics   *metrics.Metrics
	orch      *Orchestrator
	clock     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sol:     chaintest.New(chain.SOL),
		evm:     chaintest.New(chain.EVM),
		poster:  &chattest.Poster{},
		slept:   make(chan time.Duration, 16),
		metrics: metrics.New(),
		clock:   time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	var err error
	h.reg, err = registry.Open("")
	require.NoError(t, err)
	idx, err := notices.OpenIndex("")
	require.NoError(t, err)
	h.publisher = notices.NewPublisher(h.poster, idx, "notices", "@ops", h.metrics)

	adapters := chain.Adapters{chain.SOL: h.sol, chain.EVM: h.evm}
	executor := swap.NewExecutor(adapters, routeAggregator{}, map[chain.Chain]swap.Leg{
		chain.SOL: {NativeAmount: big.NewInt(2_500_000), SlippagePercent: 5},
		chain.EVM: {NativeAmount: big.NewInt(250000000000000), SlippagePercent: 0.5},
	}, h.metrics)
	watcher := settlement.NewWatcher(adapters, h.reg, h.publisher, settlement.Options{
		Recipients: 20,
		Retry:      retry.Options{MaxRetries: 1, BaseDelay: time.Second},
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.slept <- d
			return nil
		},
	}, h.metrics)

	h.orch = New(adapters, executor, watcher, h.reg, quota.NewMemoryTracker(3), idx, h.metrics, Config{
		Waits:      map[chain.Chain]time.Duration{chain.SOL: 20 * time.Second, chain.EVM: 60 * time.Second},
		SessionTTL: time.Minute,
	}).WithClock(func() time.Time { return h.clock })
	return h
}

func TestRegister_EndToEndSolana(t *testing.T) {
	h := newHarness(t)
	h.sol.Decimals["Mint111"] = 6
	// 1000 tokens credited by the swap transaction
	h.sol.SetSettled("swap-1", decimal.NewFromInt(1000))

	_, err := h.publisher.PublishNew(context.Background(), fs.AirdropEvent{
		EventTitle: "XYZ(XYZ) airdrop",
		Coins:      []fs.AirdropCoin{{Chain: "SOL", Coin: "xyz", Contract: "Mint111"}},
	})
	require.NoError(t, err)

	reg, err := h.orch.RegisterAnnounced(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Equal(t, "swap-1", reg.TxID)
	assert.Equal(t, uint8(6), reg.Decimals)
	assert.Equal(t, "https://solscan.io/tx/swap-1", reg.Explorer)

	res := <-reg.Result
	require.NoError(t, res.Err)
	assert.Equal(t, 20*time.Second, <-h.slept)

	rec, err := h.reg.Lookup("xyz")
	require.NoError(t, err)
	assert.Equal(t, chain.SOL, rec.Chain)
	assert.Equal(t, "Mint111", rec.Address)
	assert.Equal(t, uint8(6), rec.Decimals)
	assert.True(t, decimal.NewFromInt(50).Equal(rec.Amount), rec.Amount.String())

	a, ok := h.publisher.Index().Get("xyz")
	require.True(t, ok)
	assert.Equal(t, notices.StatusSettled, a.Status)
	require.Len(t, h.poster.EditsSnapshot(), 1)

	require.Len(t, h.sol.Prepared, 1)
	assert.Equal(t, int64(2_500_000), h.sol.Prepared[0].Int64())
}

func TestRegister_LookupErrorAborts(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Register(context.Background(), chain.EVM, "abc", "0xmissing")
	var le *chain.LookupError
	require.ErrorAs(t, err, &le)
	assert.Empty(t, h.evm.Submitted)
}

func TestRegister_SwapErrorReported(t *testing.T) {
	h := newHarness(t)
	h.evm.Decimals["0xt"] = 18
	h.evm.SubmitErr = errors.New("insufficient funds")

	_, err := h.orch.Register(context.Background(), chain.EVM, "abc", "0xt")
	var se *swap.SwapError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, h.reg.Len())
}

func TestRegisterAnnounced_Unknown(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.RegisterAnnounced(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNoAnnouncement)
}

func TestRegisterManual(t *testing.T) {
	h := newHarness(t)
	h.evm.Decimals["0xabc"] = 18

	rec, err := h.orch.RegisterManual(context.Background(), chain.EVM, "ABC", "0xabc", decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.Equal(t, uint8(18), rec.Decimals)

	got, err := h.reg.Lookup("abc")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.5").Equal(got.Amount))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RegisteredSize))
}

func seedToken(t *testing.T, h *harness) {
	t.Helper()
	require.NoError(t, h.reg.Register("XYZ", registry.Record{Chain: chain.SOL, Address: "Mint111", Decimals: 6, Amount: decimal.NewFromInt(50)}))
}

func TestSend_FullFlow(t *testing.T) {
	h := newHarness(t)
	seedToken(t, h)
	ctx := context.Background()

	tokens, err := h.orch.RequestSend(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "xyz", tokens[0].Symbol)

	_, err = h.orch.Pick("u1", "XYZ")
	require.NoError(t, err)
	sym, ok := h.orch.PickedSymbol("u1")
	require.True(t, ok)
	assert.Equal(t, "xyz", sym)

	d, err := h.orch.SubmitWallet(ctx, "u1", "", " Recipient111 ")
	require.NoError(t, err)
	assert.Equal(t, "transfer-1", d.TxID)
	assert.Equal(t, "https://solscan.io/tx/transfer-1", d.Explorer)

	calls := h.sol.TransferCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Mint111", calls[0].Contract)
	assert.Equal(t, "Recipient111", calls[0].Recipient)
	assert.True(t, decimal.NewFromInt(50).Equal(calls[0].Amount))
	assert.Equal(t, uint8(6), calls[0].Decimals)

	// the session is single use
	_, err = h.orch.SubmitWallet(ctx, "u1", "xyz", "Recipient111")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSend_QuotaNotRolledBackOnFailure(t *testing.T) {
	h := newHarness(t)
	seedToken(t, h)
	h.sol.TransferErr = errors.New("blockhash not found")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.orch.RequestSend(ctx, "u1")
		require.NoError(t, err)
		_, err = h.orch.SubmitWallet(ctx, "u1", "xyz", "R")
		var te *chain.TransferError
		require.ErrorAs(t, err, &te)
	}

	_, err := h.orch.RequestSend(ctx, "u1")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.QuotaDenials))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Transfers.WithLabelValues("sol", "error")))
}

func TestSend_SessionExpires(t *testing.T) {
	h := newHarness(t)
	seedToken(t, h)

	_, err := h.orch.RequestSend(context.Background(), "u1")
	require.NoError(t, err)
	h.clock = h.clock.Add(2 * time.Minute)

	_, err = h.orch.Pick("u1", "xyz")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = h.orch.SubmitWallet(context.Background(), "u1", "xyz", "R")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSend_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.SubmitWallet(ctx, "stranger", "xyz", "R")
	assert.ErrorIs(t, err, ErrNoSession)

	// an empty registry still consumes the request
	_, err = h.orch.RequestSend(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoTokens)

	seedToken(t, h)
	_, err = h.orch.RequestSend(ctx, "u1")
	require.NoError(t, err)
	_, err = h.orch.Pick("u1", "unknown")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}
