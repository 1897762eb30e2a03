package chain

import (
	"errors"
	"fmt"
)

// LookupError - token contract or mint not found or malformed
type LookupError struct {
	Chain    Chain
	Contract string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s decimals lookup for %s failed: %v", e.Chain, e.Contract, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// TransferError - signing, balance, recipient or broadcast failure
type TransferError struct {
	Chain     Chain
	Recipient string
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer to %s failed: %v", e.Chain, e.Recipient, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ErrNotSettled - the transaction is not yet visible to the node
var ErrNotSettled = errors.New("transaction not settled yet")
