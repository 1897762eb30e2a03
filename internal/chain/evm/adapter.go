package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"airdrop-bot/internal/chain"
	logging "airdrop-bot/internal/infra/log"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NativeAsset is the aggregator placeholder address for ETH.
const NativeAsset = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// DefaultTransferGas is used when gas estimation fails.
const DefaultTransferGas = 100000

// Backend is the subset of *ethclient.Client the adapter calls.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Adapter struct {
	backend Backend
	key     *ecdsa.PrivateKey
	wallet  common.Address
}

// Dial connects to rpcURL and builds the adapter.
func Dial(ctx context.Context, rpcURL, privateKeyHex, address string) (*Adapter, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("evm rpc url is empty")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial evm rpc: %w", err)
	}
	return New(client, privateKeyHex, address)
}

// New derives the wallet from the hex key ("0x" optional).
// A non-empty address must match the derived one.
func New(backend Backend, privateKeyHex, address string) (*Adapter, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	wallet := crypto.PubkeyToAddress(key.PublicKey)

	if address != "" {
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("invalid evm address %q", address)
		}
		if common.HexToAddress(address) != wallet {
			return nil, fmt.Errorf("evm address %s does not match private key (%s)", address, wallet.Hex())
		}
	}

	return &Adapter{backend: backend, key: key, wallet: wallet}, nil
}

func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if raw == "" {
		return nil, fmt.Errorf("evm private key is empty")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid evm private key: %w", err)
	}
	return key, nil
}

func (a *Adapter) Chain() chain.Chain    { return chain.EVM }
func (a *Adapter) WalletAddress() string { return a.wallet.Hex() }
func (a *Adapter) NativeAsset() string   { return NativeAsset }

func (a *Adapter) GetDecimals(ctx context.Context, contract string) (uint8, error) {
	lookupErr := func(err error) error {
		return &chain.LookupError{Chain: chain.EVM, Contract: contract, Err: err}
	}

	if !common.IsHexAddress(contract) {
		return 0, lookupErr(fmt.Errorf("malformed address"))
	}
	token := common.HexToAddress(contract)

	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, lookupErr(err)
	}

	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, lookupErr(err)
	}
	if len(out) == 0 {
		return 0, lookupErr(fmt.Errorf("no contract code at address"))
	}

	values, err := erc20ABI.Unpack("decimals", out)
	if err != nil || len(values) != 1 {
		return 0, lookupErr(fmt.Errorf("unexpected decimals response: %v", err))
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, lookupErr(fmt.Errorf("unexpected decimals type %T", values[0]))
	}
	return decimals, nil
}

// Transfer fetches nonce and gas price right before signing.
func (a *Adapter) Transfer(ctx context.Context, contract, recipient string, amount decimal.Decimal, decimals uint8) (string, error) {
	transferErr := func(err error) error {
		return &chain.TransferError{Chain: chain.EVM, Recipient: recipient, Err: err}
	}

	if !common.IsHexAddress(recipient) {
		return "", transferErr(fmt.Errorf("invalid recipient address"))
	}
	if !common.IsHexAddress(contract) {
		return "", transferErr(fmt.Errorf("invalid token contract %q", contract))
	}
	units := chain.ToBaseUnits(amount, decimals)
	if units.Sign() <= 0 {
		return "", transferErr(fmt.Errorf("amount %s is below one base unit", amount.String()))
	}

	token := common.HexToAddress(contract)
	data, err := erc20ABI.Pack("transfer", common.HexToAddress(recipient), units)
	if err != nil {
		return "", transferErr(fmt.Errorf("failed to pack transfer: %w", err))
	}

	txHash, err := a.signAndSend(ctx, token, big.NewInt(0), data, 0, nil)
	if err != nil {
		return "", transferErr(err)
	}

	logging.LogSuccess("ERC20 transfer broadcast",
		zap.String("token", token.Hex()),
		zap.String("to", recipient),
		zap.String("amount", amount.String()),
		zap.String("tx", txHash))
	return txHash, nil
}

// PrepareSwap has nothing to do on EVM, the swap spends native ETH directly.
func (a *Adapter) PrepareSwap(ctx context.Context, nativeAmount *big.Int) error {
	return nil
}

// SubmitSwap signs the aggregator's call with a fresh nonce.
func (a *Adapter) SubmitSwap(ctx context.Context, payload chain.SwapPayload) (string, error) {
	if !common.IsHexAddress(payload.To) {
		return "", fmt.Errorf("swap payload has invalid target %q", payload.To)
	}
	to := common.HexToAddress(payload.To)

	data, err := hexutil.Decode(payload.Data)
	if err != nil {
		return "", fmt.Errorf("swap payload data: %w", err)
	}
	value, err := parseUint(payload.Value)
	if err != nil {
		return "", fmt.Errorf("swap payload value: %w", err)
	}
	gas, err := parseUint(payload.Gas)
	if err != nil {
		return "", fmt.Errorf("swap payload gas: %w", err)
	}
	var gasPrice *big.Int
	if payload.GasPrice != "" {
		if gasPrice, err = parseUint(payload.GasPrice); err != nil {
			return "", fmt.Errorf("swap payload gas price: %w", err)
		}
	}

	return a.signAndSend(ctx, to, value, data, gas.Uint64(), gasPrice)
}

// signAndSend builds a legacy transaction. Zero gas asks the node for an
// estimate, nil gasPrice uses the node's suggestion.
func (a *Adapter) signAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte, gas uint64, gasPrice *big.Int) (string, error) {
	nonce, err := a.backend.PendingNonceAt(ctx, a.wallet)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	if gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice, err = a.backend.SuggestGasPrice(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	if gas == 0 {
		gas, err = a.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  a.wallet,
			To:    &to,
			Value: value,
			Data:  data,
		})
		if err != nil || gas == 0 {
			logging.LogWarn("Gas estimation failed, using default",
				zap.Uint64("default_gas", DefaultTransferGas),
				zap.Error(err))
			gas = DefaultTransferGas
		}
	}

	chainID, err := a.backend.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	start := time.Now()
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast rejected: %w", err)
	}
	logging.LogDebug("EVM transaction sent",
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
		zap.String("gas_price", gasPrice.String()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))

	return signed.Hash().Hex(), nil
}

func (a *Adapter) InspectSettlement(ctx context.Context, txID, contract string, decimals uint8) (decimal.Decimal, error) {
	receipt, err := a.backend.TransactionReceipt(ctx, common.HexToHash(txID))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return decimal.Zero, fmt.Errorf("receipt %s: %w", txID, chain.ErrNotSettled)
		}
		return decimal.Zero, fmt.Errorf("failed to fetch receipt %s: %w", txID, err)
	}
	if receipt == nil {
		return decimal.Zero, fmt.Errorf("receipt %s: %w", txID, chain.ErrNotSettled)
	}

	credited := CreditedAmount(receipt.Logs, contract, a.wallet)
	return chain.FromBaseUnits(credited, decimals), nil
}

func parseUint(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	var (
		v  *big.Int
		ok bool
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		v, ok = new(big.Int).SetString(s, 10)
	}
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid unsigned integer %q", s)
	}
	return v, nil
}
