package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Chain is the closed set of supported networks.
type Chain string

const (
	EVM Chain = "eth"
	SOL Chain = "sol"
)

func (c Chain) String() string { return string(c) }

func (c Chain) Valid() bool {
	return c == EVM || c == SOL
}

// ParseChain accepts eth|evm|sol|solana in any case.
func ParseChain(s string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eth", "evm", "ethereum":
		return EVM, nil
	case "sol", "solana":
		return SOL, nil
	}
	return "", fmt.Errorf("unsupported chain %q", s)
}

// ParseExplorerChain maps the notice explorer label (ETH, SOL, BASE, BSC, UNKNOWN).
// ok is false for networks the bot cannot trade on.
func ParseExplorerChain(label string) (Chain, bool) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "ETH":
		return EVM, true
	case "SOL":
		return SOL, true
	}
	return "", false
}

// AccountMeta mirrors one account of an aggregator instruction.
type AccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// Instruction is an aggregator-supplied Solana instruction, Data is base64.
type Instruction struct {
	ProgramID string        `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      string        `json:"data"`
}

// SwapPayload is the executable route returned by the aggregator.
// EVM routes fill the call fields, Solana routes fill Instructions.
type SwapPayload struct {
	From     string
	To       string
	Data     string
	Value    string
	Gas      string
	GasPrice string

	Instructions []Instruction
}

// Adapter is implemented once per chain.
type Adapter interface {
	Chain() Chain
	WalletAddress() string
	// NativeAsset is the aggregator's identifier for the chain's native coin.
	NativeAsset() string

	GetDecimals(ctx context.Context, contract string) (uint8, error)
	Transfer(ctx context.Context, contract, recipient string, amount decimal.Decimal, decimals uint8) (string, error)
	// InspectSettlement returns the wallet's net credit of contract in txID, zero when none.
	InspectSettlement(ctx context.Context, txID, contract string, decimals uint8) (decimal.Decimal, error)

	PrepareSwap(ctx context.Context, nativeAmount *big.Int) error
	SubmitSwap(ctx context.Context, payload SwapPayload) (string, error)
}

// Adapters selects an adapter by chain.
type Adapters map[Chain]Adapter

func (a Adapters) Get(c Chain) (Adapter, error) {
	ad, ok := a[c]
	if !ok || ad == nil {
		return nil, fmt.Errorf("no adapter configured for chain %s", c)
	}
	return ad, nil
}

// ToBaseUnits truncates amount*10^decimals toward zero.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

func FromBaseUnits(units *big.Int, decimals uint8) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -int32(decimals))
}

// ExplorerTxURL links a transaction on the chain's block explorer.
func ExplorerTxURL(c Chain, txID string) string {
	switch c {
	case SOL:
		return "https://solscan.io/tx/" + txID
	case EVM:
		return "https://etherscan.io/tx/" + txID
	}
	return txID
}
