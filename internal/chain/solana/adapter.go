package solana

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"airdrop-bot/internal/chain"
	logging "airdrop-bot/internal/infra/log"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RPC is the subset of *rpc.Client the adapter calls.
type RPC interface {
	GetTokenSupply(ctx context.Context, tokenMint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

type Adapter struct {
	rpc    RPC
	key    solana.PrivateKey
	wallet solana.PublicKey
}

// NewRPCClient returns a client limited to perSecond requests.
func NewRPCClient(rpcURL string, perSecond int) *rpc.Client {
	if perSecond <= 0 {
		perSecond = 10
	}
	return rpc.NewWithCustomRPCClient(rpc.NewWithLimiter(
		rpcURL,
		rate.Every(time.Second/time.Duration(perSecond)),
		perSecond,
	))
}

// New loads the base58 key. A non-empty address must match it.
func New(client RPC, privateKeyB58, address string) (*Adapter, error) {
	key, err := LoadKeypair(privateKeyB58)
	if err != nil {
		return nil, err
	}
	wallet := key.PublicKey()

	if address != "" {
		configured, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return nil, fmt.Errorf("invalid solana address %q: %w", address, err)
		}
		if !configured.Equals(wallet) {
			return nil, fmt.Errorf("solana address %s does not match private key (%s)", address, wallet)
		}
	}

	return &Adapter{rpc: client, key: key, wallet: wallet}, nil
}

func (a *Adapter) Chain() chain.Chain    { return chain.SOL }
func (a *Adapter) WalletAddress() string { return a.wallet.String() }

// NativeAsset is the wSOL mint, swaps spend wrapped SOL.
func (a *Adapter) NativeAsset() string { return WrappedSOLMint.String() }

func (a *Adapter) GetDecimals(ctx context.Context, contract string) (uint8, error) {
	mint, err := solana.PublicKeyFromBase58(contract)
	if err != nil {
		return 0, &chain.LookupError{Chain: chain.SOL, Contract: contract, Err: fmt.Errorf("malformed mint: %w", err)}
	}
	supply, err := a.rpc.GetTokenSupply(ctx, mint, rpc.CommitmentFinalized)
	if err != nil {
		return 0, &chain.LookupError{Chain: chain.SOL, Contract: contract, Err: err}
	}
	if supply == nil || supply.Value == nil {
		return 0, &chain.LookupError{Chain: chain.SOL, Contract: contract, Err: fmt.Errorf("empty token supply response")}
	}
	return supply.Value.Decimals, nil
}

// tokenProgramOf reads the mint owner to choose Token or Token-2022.
func (a *Adapter) tokenProgramOf(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	info, err := a.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to load mint account: %w", err)
	}
	if info == nil || info.Value == nil {
		return solana.PublicKey{}, fmt.Errorf("mint account %s not found", mint)
	}
	owner := info.Value.Owner
	if !IsTokenProgram(owner) {
		return solana.PublicKey{}, fmt.Errorf("mint %s is owned by %s, not a token program", mint, owner)
	}
	return owner, nil
}

// Transfer creates the recipient's ATA idempotently in the same transaction.
func (a *Adapter) Transfer(ctx context.Context, contract, recipient string, amount decimal.Decimal, decimals uint8) (string, error) {
	transferErr := func(err error) error {
		return &chain.TransferError{Chain: chain.SOL, Recipient: recipient, Err: err}
	}

	mint, err := solana.PublicKeyFromBase58(contract)
	if err != nil {
		return "", transferErr(fmt.Errorf("invalid mint %q: %w", contract, err))
	}
	to, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return "", transferErr(fmt.Errorf("invalid recipient address: %w", err))
	}

	units := chain.ToBaseUnits(amount, decimals)
	if units.Sign() <= 0 || !units.IsUint64() {
		return "", transferErr(fmt.Errorf("amount %s out of range", amount.String()))
	}

	program, err := a.tokenProgramOf(ctx, mint)
	if err != nil {
		return "", transferErr(err)
	}

	source, err := AssociatedTokenAddress(a.wallet, mint, program)
	if err != nil {
		return "", transferErr(err)
	}
	destination, err := AssociatedTokenAddress(to, mint, program)
	if err != nil {
		return "", transferErr(err)
	}

	sig, err := a.send(ctx, []solana.Instruction{
		CreateATAIdempotent(a.wallet, destination, to, mint, program),
		TransferChecked(program, source, mint, destination, a.wallet, units.Uint64(), decimals),
	})
	if err != nil {
		return "", transferErr(err)
	}

	logging.LogSuccess("SPL transfer broadcast",
		zap.String("mint", contract),
		zap.String("to", recipient),
		zap.String("amount", amount.String()),
		zap.String("tx", sig))
	return sig, nil
}

// PrepareSwap wraps SOL until the wallet's wSOL account holds nativeAmount lamports.
func (a *Adapter) PrepareSwap(ctx context.Context, nativeAmount *big.Int) error {
	if nativeAmount == nil || nativeAmount.Sign() <= 0 || !nativeAmount.IsUint64() {
		return fmt.Errorf("invalid swap amount %v", nativeAmount)
	}
	want := nativeAmount.Uint64()

	wsolATA, err := AssociatedTokenAddress(a.wallet, WrappedSOLMint, solana.TokenProgramID)
	if err != nil {
		return err
	}

	var current uint64
	bal, err := a.rpc.GetTokenAccountBalance(ctx, wsolATA, rpc.CommitmentConfirmed)
	if err == nil && bal != nil && bal.Value != nil {
		if v, perr := strconv.ParseUint(bal.Value.Amount, 10, 64); perr == nil {
			current = v
		}
	}

	if current >= want {
		logging.LogDebug("wSOL balance sufficient", zap.Uint64("lamports", current))
		return nil
	}

	shortfall := want - current
	logging.LogInfo("Wrapping SOL for swap",
		zap.Uint64("current", current),
		zap.Uint64("wrap", shortfall))

	sig, err := a.send(ctx, []solana.Instruction{
		CreateATAIdempotent(a.wallet, wsolATA, a.wallet, WrappedSOLMint, solana.TokenProgramID),
		system.NewTransferInstruction(shortfall, a.wallet, wsolATA).Build(),
		SyncNative(wsolATA),
	})
	if err != nil {
		return fmt.Errorf("failed to wrap SOL: %w", err)
	}
	logging.LogInfo("wSOL wrapped", zap.String("tx", sig))
	return nil
}

func (a *Adapter) SubmitSwap(ctx context.Context, payload chain.SwapPayload) (string, error) {
	if len(payload.Instructions) == 0 {
		return "", fmt.Errorf("swap payload has no instructions")
	}
	ixs, err := ConvertInstructions(payload.Instructions)
	if err != nil {
		return "", err
	}
	return a.send(ctx, ixs)
}

// send signs with the wallet as fee payer and broadcasts without preflight.
func (a *Adapter) send(ctx context.Context, ixs []solana.Instruction) (string, error) {
	recent, err := a.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get blockhash: %w", err)
	}
	if recent == nil || recent.Value == nil {
		return "", fmt.Errorf("empty blockhash response")
	}

	tx, err := solana.NewTransaction(ixs, recent.Value.Blockhash, solana.TransactionPayer(a.wallet))
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(a.wallet) {
			return &a.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := a.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return "", fmt.Errorf("broadcast rejected: %w", err)
	}
	return sig.String(), nil
}

func (a *Adapter) InspectSettlement(ctx context.Context, txID, contract string, decimals uint8) (decimal.Decimal, error) {
	sig, err := solana.SignatureFromBase58(txID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid signature %q: %w", txID, err)
	}

	var mint solana.PublicKey
	if contract != "" {
		if mint, err = solana.PublicKeyFromBase58(contract); err != nil {
			return decimal.Zero, fmt.Errorf("invalid mint %q: %w", contract, err)
		}
	}

	maxVersion := uint64(0)
	res, err := a.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("transaction %s: %w", txID, chain.ErrNotSettled)
		}
		return decimal.Zero, fmt.Errorf("failed to fetch transaction %s: %w", txID, err)
	}
	if res == nil || res.Meta == nil {
		return decimal.Zero, fmt.Errorf("transaction %s: %w", txID, chain.ErrNotSettled)
	}

	return CreditedAmount(res.Meta, a.wallet, mint), nil
}
