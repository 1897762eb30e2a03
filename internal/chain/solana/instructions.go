package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"airdrop-bot/internal/chain"

	"github.com/gagliardetto/solana-go"
)

const (
	ataCreateIdempotent  = 1
	tokenTransferChecked = 12
	tokenSyncNative      = 17
)

// CreateATAIdempotent creates owner's associated account unless it already exists.
func CreateATAIdempotent(payer, ata, owner, mint, tokenProgram solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(ata, true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(tokenProgram, false, false),
		},
		[]byte{ataCreateIdempotent},
	)
}

func TransferChecked(tokenProgram, source, mint, destination, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	data := make([]byte, 10)
	data[0] = tokenTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals

	return solana.NewInstruction(
		tokenProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(source, true, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(destination, true, false),
			solana.NewAccountMeta(owner, false, true),
		},
		data,
	)
}

func SyncNative(account solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{solana.NewAccountMeta(account, true, false)},
		[]byte{tokenSyncNative},
	)
}

// ConvertInstructions turns aggregator instructions into transaction instructions.
func ConvertInstructions(in []chain.Instruction) ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, len(in))
	for i, ix := range in {
		programID, err := solana.PublicKeyFromBase58(ix.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: invalid program id: %w", i, err)
		}
		accounts := make(solana.AccountMetaSlice, 0, len(ix.Accounts))
		for j, acc := range ix.Accounts {
			pk, err := solana.PublicKeyFromBase58(acc.Pubkey)
			if err != nil {
				return nil, fmt.Errorf("instruction %d account %d: %w", i, j, err)
			}
			accounts = append(accounts, solana.NewAccountMeta(pk, acc.IsWritable, acc.IsSigner))
		}
		data, err := base64.StdEncoding.DecodeString(ix.Data)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: invalid data: %w", i, err)
		}
		out = append(out, solana.NewInstruction(programID, accounts, data))
	}
	return out, nil
}
