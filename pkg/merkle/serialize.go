package merkle

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// ErrRootMismatch is returned by Import when the root recomputed from the
// imported entries differs from the stored root. It guards against corrupted
// or hand-edited distribution files.
var ErrRootMismatch = errors.New("merkle: root mismatch")

// Snapshot is the exported form of a distribution tree. The root is a
// fixed-length hex string and amounts are base-10 decimal strings: token
// amounts cover the full u64 range, which IEEE-754 doubles cannot represent,
// so they must never round-trip through JSON numbers.
type Snapshot struct {
	Root    string          `json:"root"`
	Total   string          `json:"total"`
	Entries []SnapshotEntry `json:"entries"`
}

// SnapshotEntry is one exported leaf.
type SnapshotEntry struct {
	Wallet string `json:"wallet"`
	Amount string `json:"amount"`
}

// Export serializes the tree to its canonical JSON form.
func Export(t *Tree) ([]byte, error) {
	root := t.Root()
	total := new(big.Int)
	entries := make([]SnapshotEntry, len(t.entries))
	for i, e := range t.entries {
		entries[i] = SnapshotEntry{
			Wallet: e.Wallet.String(),
			Amount: new(big.Int).SetUint64(e.Amount).String(),
		}
		total.Add(total, new(big.Int).SetUint64(e.Amount))
	}
	return json.MarshalIndent(Snapshot{
		Root:    hex.EncodeToString(root[:]),
		Total:   total.String(),
		Entries: entries,
	}, "", "  ")
}

// Import parses an exported snapshot, rebuilds the tree from its entries, and
// verifies the recomputed root against the stored one.
func Import(data []byte) (*Tree, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("merkle: failed to parse snapshot: %w", err)
	}

	wantRoot, err := hex.DecodeString(snap.Root)
	if err != nil || len(wantRoot) != 32 {
		return nil, fmt.Errorf("merkle: invalid root %q", snap.Root)
	}

	entries := make([]Entry, len(snap.Entries))
	for i, se := range snap.Entries {
		wallet, err := solana.PublicKeyFromBase58(se.Wallet)
		if err != nil {
			return nil, fmt.Errorf("merkle: invalid wallet %q: %w", se.Wallet, err)
		}
		amount, ok := new(big.Int).SetString(se.Amount, 10)
		if !ok || amount.Sign() < 0 || !amount.IsUint64() {
			return nil, fmt.Errorf("merkle: invalid amount %q", se.Amount)
		}
		entries[i] = Entry{Wallet: wallet, Amount: amount.Uint64()}
	}

	t, err := Build(entries)
	if err != nil {
		return nil, err
	}

	root := t.Root()
	if hex.EncodeToString(root[:]) != snap.Root {
		return nil, fmt.Errorf("%w: stored %s, recomputed %x", ErrRootMismatch, snap.Root, root)
	}
	return t, nil
}
