package rewards

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Proofs are persisted as JSON arrays of 64-char hex strings so reward rows
// can be served to clients without touching the tree again.

// EncodeProof serializes a merkle proof to its stored JSON form.
func EncodeProof(proof [][32]byte) ([]byte, error) {
	strs := make([]string, len(proof))
	for i, p := range proof {
		strs[i] = hex.EncodeToString(p[:])
	}
	return json.Marshal(strs)
}

// DecodeProof parses a stored proof. A missing or malformed proof is an
// error; callers fall back to rebuilding the tree.
func DecodeProof(data []byte) ([][32]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("rewards: empty stored proof")
	}
	var strs []string
	if err := json.Unmarshal(data, &strs); err != nil {
		return nil, fmt.Errorf("rewards: failed to parse stored proof: %w", err)
	}
	proof := make([][32]byte, len(strs))
	for i, s := range strs {
		raw, err := hex.DecodeString(s)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("rewards: invalid proof element %q", s)
		}
		copy(proof[i][:], raw)
	}
	return proof, nil
}
