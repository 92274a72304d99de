package rewards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProofEncoding(t *testing.T) {
	t.Parallel()

	proof := [][32]byte{{0x01}, {0xFF, 0xAB}, {}}
	encoded, err := EncodeProof(proof)
	require.NoError(t, err)

	decoded, err := DecodeProof(encoded)
	require.NoError(t, err)
	assert.Equal(t, proof, decoded)

	empty, err := EncodeProof(nil)
	require.NoError(t, err)
	decoded, err = DecodeProof(empty)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeProof_Invalid(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{
		nil,
		[]byte(""),
		[]byte("not json"),
		[]byte(`{"a":1}`),
		[]byte(`["zz"]`),
		[]byte(`["abcd"]`),
	} {
		_, err := DecodeProof(data)
		assert.Error(t, err, "input %q", data)
	}
}
