package evm

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// CreditedAmount sums Transfer logs paying wallet.
// Only logs emitted by token count; an empty token accepts any emitter.
func CreditedAmount(logs []*types.Log, token string, wallet common.Address) *big.Int {
	total := new(big.Int)
	filterToken := common.IsHexAddress(token)
	tokenAddr := common.HexToAddress(token)

	for _, l := range logs {
		if l == nil || len(l.Topics) != 3 || l.Topics[0] != TransferTopic {
			continue
		}
		if filterToken && l.Address != tokenAddr {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != wallet {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	return total
}
