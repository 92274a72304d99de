package rewards

import (
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTxSignature(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		for i := byte(0); i < 10; i++ {
			sig := testSig(i)
			require.NoError(t, ValidateTxSignature(sig), "signature %q", sig)
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, ValidateTxSignature(""), ErrInvalidSignature)
		assert.ErrorIs(t, ValidateTxSignature("abc"), ErrInvalidSignature)
		assert.ErrorIs(t, ValidateTxSignature(strings.Repeat("1", 86)), ErrInvalidSignature)
		assert.ErrorIs(t, ValidateTxSignature(strings.Repeat("1", 89)), ErrInvalidSignature)
	})

	t.Run("invalid alphabet", func(t *testing.T) {
		t.Parallel()
		// 0, O, I and l are not base58 characters.
		bad := strings.Repeat("0", 87)
		assert.ErrorIs(t, ValidateTxSignature(bad), ErrInvalidSignature)
	})

	t.Run("right length wrong byte count", func(t *testing.T) {
		t.Parallel()
		// 87 base58 chars that decode to fewer than 64 bytes: pad a short
		// payload with leading '1's (each encodes a zero byte that base58
		// strips from the length calculation differently than the tail).
		raw := make([]byte, 60)
		for i := range raw {
			raw[i] = 0xFF
		}
		enc := base58.Encode(raw)
		padded := strings.Repeat("1", 87-len(enc)) + enc
		require.Len(t, padded, 87)
		assert.ErrorIs(t, ValidateTxSignature(padded), ErrInvalidSignature)
	})
}
