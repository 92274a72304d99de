package rewards

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Solana transaction signatures are 64 bytes base58-encoded, which is always
// 87 or 88 characters of the bitcoin base58 alphabet (no 0, O, I, or l).
const (
	txSignatureMinLen = 87
	txSignatureMaxLen = 88
	txSignatureBytes  = 64
)

// ValidateTxSignature checks that sig is a well-formed Solana transaction
// signature. It validates shape only; whether the transaction exists on chain
// is not this system's concern.
func ValidateTxSignature(sig string) error {
	if n := len(sig); n < txSignatureMinLen || n > txSignatureMaxLen {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	raw, err := base58.Decode(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != txSignatureBytes {
		return fmt.Errorf("%w: decodes to %d bytes", ErrInvalidSignature, len(raw))
	}
	return nil
}
