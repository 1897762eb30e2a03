// Package chaintest provides an in-memory chain.Adapter for feature tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"airdrop-bot/internal/chain"

	"github.com/shopspring/decimal"
)

type TransferCall struct {
	Contract  string
	Recipient string
	Amount    decimal.Decimal
	Decimals  uint8
}

// Adapter answers from its maps and records every call.
type Adapter struct {
	Kind   chain.Chain
	Wallet string

	mu            sync.Mutex
	Decimals      map[string]uint8
	Settled       map[string]decimal.Decimal
	SettleErr     error
	SettleErrs    []error
	TransferErr   error
	SubmitErr     error
	PrepareErr    error
	Transfers     []TransferCall
	Submitted     []chain.SwapPayload
	Prepared      []*big.Int
	Inspections   int
	DecimalsCalls int
	nextTx        int
}

func New(kind chain.Chain) *Adapter {
	return &Adapter{
		Kind:     kind,
		Wallet:   "wallet-" + string(kind),
		Decimals: map[string]uint8{},
		Settled:  map[string]decimal.Decimal{},
	}
}

func (a *Adapter) Chain() chain.Chain   { return a.Kind }
func (a *Adapter) WalletAddress() string { return a.Wallet }
func (a *Adapter) NativeAsset() string   { return "native-" + string(a.Kind) }

func (a *Adapter) GetDecimals(ctx context.Context, contract string) (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.DecimalsCalls++
	d, ok := a.Decimals[contract]
	if !ok {
		return 0, &chain.LookupError{Chain: a.Kind, Contract: contract, Err: fmt.Errorf("not found")}
	}
	return d, nil
}

func (a *Adapter) Transfer(ctx context.Context, contract, recipient string, amount decimal.Decimal, decimals uint8) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Transfers = append(a.Transfers, TransferCall{contract, recipient, amount, decimals})
	if a.TransferErr != nil {
		return "", &chain.TransferError{Chain: a.Kind, Recipient: recipient, Err: a.TransferErr}
	}
	a.nextTx++
	return fmt.Sprintf("transfer-%d", a.nextTx), nil
}

// InspectSettlement pops SettleErrs first, then falls back to SettleErr and Settled.
func (a *Adapter) InspectSettlement(ctx context.Context, txID, contract string, decimals uint8) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Inspections++
	if len(a.SettleErrs) > 0 {
		err := a.SettleErrs[0]
		a.SettleErrs = a.SettleErrs[1:]
		if err != nil {
			return decimal.Zero, err
		}
	}
	if a.SettleErr != nil {
		return decimal.Zero, a.SettleErr
	}
	if v, ok := a.Settled[txID]; ok {
		return v, nil
	}
	return decimal.Zero, nil
}

func (a *Adapter) PrepareSwap(ctx context.Context, nativeAmount *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Prepared = append(a.Prepared, nativeAmount)
	return a.PrepareErr
}

func (a *Adapter) SubmitSwap(ctx context.Context, payload chain.SwapPayload) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Submitted = append(a.Submitted, payload)
	if a.SubmitErr != nil {
		return "", a.SubmitErr
	}
	a.nextTx++
	return fmt.Sprintf("swap-%d", a.nextTx), nil
}

// SetSettled is safe to call while settlement tasks run.
func (a *Adapter) SetSettled(txID string, amount decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settled[txID] = amount
}

func (a *Adapter) TransferCalls() []TransferCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]TransferCall(nil), a.Transfers...)
}

func (a *Adapter) InspectionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Inspections
}
