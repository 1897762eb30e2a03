package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"math/big"
	"testing"

	"airdrop-bot/internal/chain"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	supply     *rpc.GetTokenSupplyResult
	supplyErr  error
	mintOwner  solana.PublicKey
	wsolAmount string
	sent       []*solana.Transaction
	sendErr    error
	txResult   *rpc.GetTransactionResult
	txErr      error
}

func (f *fakeRPC) GetTokenSupply(ctx context.Context, tokenMint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error) {
	return f.supply, f.supplyErr
}

func (f *fakeRPC) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if f.mintOwner.IsZero() {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Owner: f.mintOwner}}, nil
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{7}}}, nil
}

func (f *fakeRPC) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if f.wsolAmount == "" {
		return nil, errors.New("could not find account")
	}
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: f.wsolAmount, Decimals: 9}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, transaction)
	return transaction.Signatures[0], nil
}

func (f *fakeRPC) GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	return f.txResult, f.txErr
}

func newTestAdapter(t *testing.T, f *fakeRPC) *Adapter {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	a, err := New(f, key.String(), key.PublicKey().String())
	require.NoError(t, err)
	return a
}

func programOf(tx *solana.Transaction, ix solana.CompiledInstruction) solana.PublicKey {
	return tx.Message.AccountKeys[ix.ProgramIDIndex]
}

func TestLoadKeypair_SeedAndFullKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 42
	full := ed25519.NewKeyFromSeed(seed)

	fromSeed, err := LoadKeypair(base58.Encode(seed))
	require.NoError(t, err)
	fromFull, err := LoadKeypair(base58.Encode(full))
	require.NoError(t, err)
	assert.Equal(t, fromFull.PublicKey(), fromSeed.PublicKey())

	_, err = LoadKeypair(base58.Encode([]byte{1, 2, 3}))
	assert.Error(t, err)
	_, err = LoadKeypair("0OIl")
	assert.Error(t, err)
}

func TestNew_AddressMismatch(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	_, err = New(&fakeRPC{}, key.String(), other.PublicKey().String())
	assert.Error(t, err)
}

func TestAssociatedTokenAddress_MatchesSDK(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	got, err := AssociatedTokenAddress(owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetDecimals(t *testing.T) {
	a := newTestAdapter(t, &fakeRPC{supply: &rpc.GetTokenSupplyResult{Value: &rpc.UiTokenAmount{Decimals: 9}}})
	d, err := a.GetDecimals(context.Background(), solana.NewWallet().PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, uint8(9), d)

	var le *chain.LookupError
	_, err = a.GetDecimals(context.Background(), "not//base58")
	assert.ErrorAs(t, err, &le)

	b := newTestAdapter(t, &fakeRPC{supplyErr: errors.New("Invalid param: not a Token mint")})
	_, err = b.GetDecimals(context.Background(), solana.NewWallet().PublicKey().String())
	assert.ErrorAs(t, err, &le)
}

func TestTransfer_CreatesATAThenTransferChecked(t *testing.T) {
	f := &fakeRPC{mintOwner: solana.TokenProgramID}
	a := newTestAdapter(t, f)
	mint := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	sig, err := a.Transfer(context.Background(), mint.String(), recipient.String(), decimal.RequireFromString("2.5"), 6)
	require.NoError(t, err)
	require.Len(t, f.sent, 1)

	tx := f.sent[0]
	assert.Equal(t, tx.Signatures[0].String(), sig)
	require.Len(t, tx.Message.Instructions, 2)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, programOf(tx, tx.Message.Instructions[0]))
	assert.Equal(t, solana.TokenProgramID, programOf(tx, tx.Message.Instructions[1]))

	data := []byte(tx.Message.Instructions[1].Data)
	require.Len(t, data, 10)
	assert.Equal(t, byte(tokenTransferChecked), data[0])
	assert.Equal(t, byte(6), data[9])
	assert.Equal(t, uint64(2_500_000), leUint64(data[1:9]))
	assert.True(t, tx.Message.AccountKeys[0].Equals(a.wallet))
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func TestTransfer_Errors(t *testing.T) {
	var te *chain.TransferError

	a := newTestAdapter(t, &fakeRPC{mintOwner: solana.SystemProgramID})
	_, err := a.Transfer(context.Background(), solana.NewWallet().PublicKey().String(), solana.NewWallet().PublicKey().String(), decimal.NewFromInt(1), 6)
	assert.ErrorAs(t, err, &te)

	b := newTestAdapter(t, &fakeRPC{mintOwner: Token2022ProgramID})
	_, err = b.Transfer(context.Background(), solana.NewWallet().PublicKey().String(), "bad address!", decimal.NewFromInt(1), 6)
	assert.ErrorAs(t, err, &te)

	c := newTestAdapter(t, &fakeRPC{mintOwner: Token2022ProgramID, sendErr: errors.New("insufficient funds")})
	_, err = c.Transfer(context.Background(), solana.NewWallet().PublicKey().String(), solana.NewWallet().PublicKey().String(), decimal.NewFromInt(1), 6)
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestPrepareSwap(t *testing.T) {
	enough := &fakeRPC{wsolAmount: "3000000"}
	a := newTestAdapter(t, enough)
	require.NoError(t, a.PrepareSwap(context.Background(), big.NewInt(2_500_000)))
	assert.Empty(t, enough.sent)

	missing := &fakeRPC{}
	b := newTestAdapter(t, missing)
	require.NoError(t, b.PrepareSwap(context.Background(), big.NewInt(2_500_000)))
	require.Len(t, missing.sent, 1)

	tx := missing.sent[0]
	require.Len(t, tx.Message.Instructions, 3)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, programOf(tx, tx.Message.Instructions[0]))
	assert.Equal(t, solana.SystemProgramID, programOf(tx, tx.Message.Instructions[1]))
	assert.Equal(t, solana.TokenProgramID, programOf(tx, tx.Message.Instructions[2]))
	assert.Equal(t, []byte{tokenSyncNative}, []byte(tx.Message.Instructions[2].Data))

	assert.Error(t, b.PrepareSwap(context.Background(), big.NewInt(0)))
}

func TestSubmitSwap_ConvertsInstructions(t *testing.T) {
	f := &fakeRPC{}
	a := newTestAdapter(t, f)
	program := solana.NewWallet().PublicKey()

	_, err := a.SubmitSwap(context.Background(), chain.SwapPayload{Instructions: []chain.Instruction{{
		ProgramID: program.String(),
		Accounts: []chain.AccountMeta{
			{Pubkey: a.WalletAddress(), IsSigner: true, IsWritable: true},
			{Pubkey: solana.NewWallet().PublicKey().String(), IsWritable: true},
		},
		Data: base64.StdEncoding.EncodeToString([]byte{9, 9}),
	}}})
	require.NoError(t, err)
	require.Len(t, f.sent, 1)
	assert.Equal(t, program, programOf(f.sent[0], f.sent[0].Message.Instructions[0]))

	_, err = a.SubmitSwap(context.Background(), chain.SwapPayload{})
	assert.Error(t, err)

	_, err = a.SubmitSwap(context.Background(), chain.SwapPayload{Instructions: []chain.Instruction{{ProgramID: program.String(), Data: "%%%"}}})
	assert.Error(t, err)
}

func balance(idx uint16, owner, mint solana.PublicKey, amount string, decimals uint8) rpc.TokenBalance {
	o := owner
	return rpc.TokenBalance{
		AccountIndex:  idx,
		Owner:         &o,
		Mint:          mint,
		UiTokenAmount: &rpc.UiTokenAmount{Amount: amount, Decimals: decimals},
	}
}

func TestCreditedAmount(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	otherMint := solana.NewWallet().PublicKey()

	meta := &rpc.TransactionMeta{
		PreTokenBalances: []rpc.TokenBalance{
			balance(1, wallet, mint, "1000", 3),
			balance(3, wallet, otherMint, "5000", 3),
		},
		PostTokenBalances: []rpc.TokenBalance{
			balance(1, wallet, mint, "3500", 3),     // +2.5
			balance(2, wallet, mint, "500", 3),      // new account +0.5
			balance(3, wallet, otherMint, "9000", 3), // other mint
			balance(4, other, mint, "99999", 3),     // not ours
		},
	}

	got := CreditedAmount(meta, wallet, mint)
	assert.True(t, decimal.RequireFromString("3").Equal(got), got.String())

	// zero mint accepts every mint owned by the wallet
	all := CreditedAmount(meta, wallet, solana.PublicKey{})
	assert.True(t, decimal.RequireFromString("7").Equal(all), all.String())

	assert.True(t, CreditedAmount(nil, wallet, mint).IsZero())
}

func TestInspectSettlement(t *testing.T) {
	f := &fakeRPC{}
	a := newTestAdapter(t, f)
	mint := solana.NewWallet().PublicKey()
	sig := solana.Signature{1, 2, 3}.String()

	f.txResult = &rpc.GetTransactionResult{Meta: &rpc.TransactionMeta{
		PostTokenBalances: []rpc.TokenBalance{balance(1, a.wallet, mint, "123000000", 6)},
	}}
	got, err := a.InspectSettlement(context.Background(), sig, mint.String(), 6)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("123").Equal(got))

	// no matching credit is zero, not an error
	f.txResult = &rpc.GetTransactionResult{Meta: &rpc.TransactionMeta{}}
	got, err = a.InspectSettlement(context.Background(), sig, mint.String(), 6)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	f.txResult, f.txErr = nil, rpc.ErrNotFound
	_, err = a.InspectSettlement(context.Background(), sig, mint.String(), 6)
	assert.ErrorIs(t, err, chain.ErrNotSettled)
}
