package solana

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var (
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1T5LNMgUiHLoPk4fqPS")
	WrappedSOLMint     = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// LoadKeypair decodes a base58 secret: 64 bytes is the full key, 32 bytes is a seed.
func LoadKeypair(b58 string) (solana.PrivateKey, error) {
	raw, err := base58.Decode(strings.TrimSpace(b58))
	if err != nil {
		return nil, fmt.Errorf("invalid base58 private key: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return solana.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return solana.PrivateKey(ed25519.NewKeyFromSeed(raw)), nil
	default:
		return nil, fmt.Errorf("unsupported private key length %d (want 32 or 64 bytes)", len(raw))
	}
}

// AssociatedTokenAddress derives the ATA with seeds [owner, tokenProgram, mint].
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated account: %w", err)
	}
	return addr, nil
}

// IsTokenProgram accepts the legacy Token program and Token-2022.
func IsTokenProgram(owner solana.PublicKey) bool {
	return owner.Equals(solana.TokenProgramID) || owner.Equals(Token2022ProgramID)
}
