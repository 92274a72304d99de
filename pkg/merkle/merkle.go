// Package merkle builds the commitment tree over per-wallet cumulative reward
// amounts. Leaf and node hashing mirror the on-chain program exactly: any
// encoding difference breaks every proof, so the byte layout here is frozen.
package merkle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/sha3"
)

// leafDomain is the ASCII domain separator prepended to every leaf preimage.
// It must match the on-chain claim verifier byte-for-byte.
const leafDomain = "YAP_CLAIM_V1"

var (
	// ErrNoEntries is returned when building a tree over an empty entry set.
	ErrNoEntries = errors.New("merkle: no entries")

	// ErrDuplicateWallet is returned when two entries share a wallet. A tree
	// with duplicate wallets makes "proof for wallet X" ambiguous, so the
	// builder rejects them instead of silently picking a match.
	ErrDuplicateWallet = errors.New("merkle: duplicate wallet")
)

// Entry is one leaf of a distribution tree: a wallet and the cumulative
// amount (smallest token unit) it is entitled to as of this distribution.
type Entry struct {
	Wallet solana.PublicKey
	Amount uint64
}

// Tree is an immutable merkle tree over a set of entries. Construction is a
// pure function of the entry slice: identical input always yields an
// identical root.
type Tree struct {
	entries []Entry
	// levels[0] holds the leaf hashes in entry order; levels[len-1] is the
	// single root node.
	levels [][][32]byte
}

// HashLeaf computes keccak256(domain || wallet || amount as u64 LE).
func HashLeaf(wallet solana.PublicKey, amount uint64) [32]byte {
	buf := make([]byte, 0, len(leafDomain)+32+8)
	buf = append(buf, leafDomain...)
	buf = append(buf, wallet[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, amount)
	return keccak256(buf)
}

func keccak256(data []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// hashPair hashes two sibling nodes with the smaller one first, so that
// verification never needs to know which side a proof element came from.
func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return keccak256(buf)
}

// Build constructs a tree over the given entries. It fails on an empty entry
// set and on duplicate wallets. Nodes are paired left to right; an odd node
// at any level is promoted unchanged to the next level.
func Build(entries []Entry) (*Tree, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	seen := make(map[solana.PublicKey]struct{}, len(entries))
	leaves := make([][32]byte, len(entries))
	for i, e := range entries {
		if _, dup := seen[e.Wallet]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWallet, e.Wallet)
		}
		seen[e.Wallet] = struct{}{}
		leaves[i] = HashLeaf(e.Wallet, e.Amount)
	}

	levels := [][][32]byte{leaves}
	for len(levels[len(levels)-1]) > 1 {
		cur := levels[len(levels)-1]
		next := make([][32]byte, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 == len(cur) {
				next = append(next, cur[i])
				break
			}
			next = append(next, hashPair(cur[i], cur[i+1]))
		}
		levels = append(levels, next)
	}

	t := &Tree{
		entries: make([]Entry, len(entries)),
		levels:  levels,
	}
	copy(t.entries, entries)
	return t, nil
}

// Root returns the tree's root hash.
func (t *Tree) Root() [32]byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Entries returns the entries the tree was built over, in leaf order.
func (t *Tree) Entries() []Entry {
	return t.entries
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.entries)
}

// Proof returns the sibling-hash path from the given wallet's leaf to the
// root, or false if the wallet is not in the tree. A promoted odd node has no
// sibling at that level, so proofs can be shorter than the tree height.
func (t *Tree) Proof(wallet solana.PublicKey) ([][32]byte, bool) {
	idx := -1
	for i, e := range t.entries {
		if e.Wallet == wallet {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	proof := make([][32]byte, 0, len(t.levels)-1)
	for level := 0; level < len(t.levels)-1; level++ {
		sibling := idx ^ 1
		if sibling < len(t.levels[level]) {
			proof = append(proof, t.levels[level][sibling])
		}
		idx /= 2
	}
	return proof, true
}

// Verify recomputes the leaf for (wallet, amount) and folds it with each
// proof element in order, comparing the result to root byte-for-byte.
func Verify(root [32]byte, wallet solana.PublicKey, amount uint64, proof [][32]byte) bool {
	computed := HashLeaf(wallet, amount)
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}
