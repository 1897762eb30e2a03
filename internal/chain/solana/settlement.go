package solana

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// CreditedAmount sums positive post-minus-pre balance changes of accounts owned by wallet.
// A zero mint accepts every mint. Missing pre balances count as zero.
// The reported decimals of each balance normalize it.
func CreditedAmount(meta *rpc.TransactionMeta, wallet, mint solana.PublicKey) decimal.Decimal {
	total := decimal.Zero
	if meta == nil {
		return total
	}

	pre := make(map[uint16]rpc.TokenBalance, len(meta.PreTokenBalances))
	for _, b := range meta.PreTokenBalances {
		pre[b.AccountIndex] = b
	}

	for _, post := range meta.PostTokenBalances {
		if post.Owner == nil || !post.Owner.Equals(wallet) {
			continue
		}
		if !mint.IsZero() && !post.Mint.Equals(mint) {
			continue
		}
		if post.UiTokenAmount == nil {
			continue
		}

		postAmount, ok := new(big.Int).SetString(post.UiTokenAmount.Amount, 10)
		if !ok {
			continue
		}
		preAmount := new(big.Int)
		if p, found := pre[post.AccountIndex]; found && p.UiTokenAmount != nil {
			if v, ok := new(big.Int).SetString(p.UiTokenAmount.Amount, 10); ok {
				preAmount = v
			}
		}

		diff := new(big.Int).Sub(postAmount, preAmount)
		if diff.Sign() <= 0 {
			continue
		}
		total = total.Add(decimal.NewFromBigInt(diff, -int32(post.UiTokenAmount.Decimals)))
	}
	return total
}
