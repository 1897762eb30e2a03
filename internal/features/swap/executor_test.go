package swap

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/chain/chaintest"
	"airdrop-bot/internal/clients_api/okx"
	"airdrop-bot/internal/infra/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAggregator struct {
	requests []okx.SwapRequest
	err      error
}

func (f *fakeAggregator) Swap(ctx context.Context, req okx.SwapRequest) (*chain.SwapPayload, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &chain.SwapPayload{To: "router", Data: "0x01", Value: req.Amount}, nil
}

func (f *fakeAggregator) SwapInstructions(ctx context.Context, req okx.SwapRequest) (*chain.SwapPayload, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &chain.SwapPayload{Instructions: []chain.Instruction{{ProgramID: "P", Data: "AQ=="}}}, nil
}

func setup() (*Executor, *fakeAggregator, *chaintest.Adapter, *chaintest.Adapter, *metrics.Metrics) {
	evm := chaintest.New(chain.EVM)
	sol := chaintest.New(chain.SOL)
	agg := &fakeAggregator{}
	m := metrics.New()
	e := NewExecutor(chain.Adapters{chain.EVM: evm, chain.SOL: sol}, agg, map[chain.Chain]Leg{
		chain.EVM: {NativeAmount: big.NewInt(250000000000000), SlippagePercent: 0.5},
		chain.SOL: {NativeAmount: big.NewInt(2_500_000), SlippagePercent: 5},
	}, m)
	return e, agg, evm, sol, m
}

func TestExecute_EVM(t *testing.T) {
	e, agg, evm, sol, m := setup()

	tx, err := e.Execute(context.Background(), chain.EVM, "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, "swap-1", tx)

	require.Len(t, agg.requests, 1)
	req := agg.requests[0]
	assert.Equal(t, "250000000000000", req.Amount)
	assert.Equal(t, "native-eth", req.FromToken)
	assert.Equal(t, "0xtoken", req.ToToken)
	assert.Equal(t, "wallet-eth", req.Wallet)
	assert.Equal(t, 0.5, req.SlippagePercent)

	require.Len(t, evm.Submitted, 1)
	assert.Equal(t, "router", evm.Submitted[0].To)
	assert.Empty(t, evm.Prepared)
	assert.Empty(t, sol.Submitted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Swaps.WithLabelValues("eth", "ok")))
}

func TestExecute_SolanaWrapsFirst(t *testing.T) {
	e, agg, _, sol, _ := setup()

	_, err := e.Execute(context.Background(), chain.SOL, "Mint")
	require.NoError(t, err)

	require.Len(t, sol.Prepared, 1)
	assert.Equal(t, int64(2_500_000), sol.Prepared[0].Int64())
	assert.Equal(t, float64(5), agg.requests[0].SlippagePercent)
	require.Len(t, sol.Submitted, 1)
	assert.Len(t, sol.Submitted[0].Instructions, 1)
}

func TestExecute_Failures(t *testing.T) {
	t.Run("route", func(t *testing.T) {
		e, agg, evm, _, m := setup()
		agg.err = &okx.APIError{Path: okx.SwapPath, Code: "82000", Msg: "no liquidity"}

		_, err := e.Execute(context.Background(), chain.EVM, "0xtoken")
		var se *SwapError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "route", se.Stage)
		var api *okx.APIError
		assert.ErrorAs(t, err, &api)
		assert.Empty(t, evm.Submitted)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Swaps.WithLabelValues("eth", "error")))
	})

	t.Run("prepare", func(t *testing.T) {
		e, agg, _, sol, _ := setup()
		sol.PrepareErr = errors.New("insufficient lamports")

		_, err := e.Execute(context.Background(), chain.SOL, "Mint")
		var se *SwapError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "prepare", se.Stage)
		assert.Empty(t, agg.requests)
	})

	t.Run("submit", func(t *testing.T) {
		e, agg, evm, _, _ := setup()
		evm.SubmitErr = errors.New("nonce too low")

		_, err := e.Execute(context.Background(), chain.EVM, "0xtoken")
		var se *SwapError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "submit", se.Stage)
		// no retry
		assert.Len(t, agg.requests, 1)
	})

	t.Run("unknown chain", func(t *testing.T) {
		e, _, _, _, _ := setup()
		_, err := e.Execute(context.Background(), chain.Chain("base"), "0x")
		var se *SwapError
		assert.ErrorAs(t, err, &se)
	})
}

type quotingAggregator struct {
	fakeAggregator
	quotes   int
	quoteErr error
}

func (q *quotingAggregator) Quote(ctx context.Context, req okx.SwapRequest) (*okx.QuoteResult, error) {
	q.quotes++
	if q.quoteErr != nil {
		return nil, q.quoteErr
	}
	var res okx.QuoteResult
	if err := json.Unmarshal([]byte(`{"fromToken":{"tokenUnitPrice":"3500"}}`), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func TestExecute_QuoteIsAdvisory(t *testing.T) {
	for _, quoteErr := range []error{nil, errors.New("quote down")} {
		agg := &quotingAggregator{quoteErr: quoteErr}
		evm := chaintest.New(chain.EVM)
		e := NewExecutor(chain.Adapters{chain.EVM: evm}, agg, map[chain.Chain]Leg{
			chain.EVM: {NativeAmount: big.NewInt(250000000000000), SlippagePercent: 0.5},
		}, nil)

		tx, err := e.Execute(context.Background(), chain.EVM, "0xtoken")
		require.NoError(t, err)
		assert.Equal(t, "swap-1", tx)
		assert.Equal(t, 1, agg.quotes)
		assert.Len(t, agg.requests, 1)
	}
}
