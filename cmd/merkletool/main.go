// merkletool verifies exported distribution snapshots offline: it recomputes
// the tree from a snapshot's entries, checks the stored root, and can print
// the proof for a single wallet. Useful for auditing a committed root without
// database access.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	flag "github.com/spf13/pflag"

	"github.com/pushkarm029/yap-rewards/pkg/merkle"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fileFlag := flag.String("file", "", "Path to an exported distribution snapshot (required)")
	walletFlag := flag.String("wallet", "", "Print the proof for this wallet")
	verifyFlag := flag.String("verify-proof", "", "Verify a proof (JSON array of hex hashes) for --wallet and --amount against the snapshot root")
	amountFlag := flag.String("amount", "", "Cumulative amount for --verify-proof, base-10")
	flag.Parse()

	if *fileFlag == "" {
		flag.Usage()
		return fmt.Errorf("--file is required")
	}

	data, err := os.ReadFile(*fileFlag)
	if err != nil {
		return err
	}

	tree, err := merkle.Import(data)
	if err != nil {
		return err
	}
	root := tree.Root()
	fmt.Printf("root: %s\n", hex.EncodeToString(root[:]))
	fmt.Printf("entries: %d\n", tree.Len())

	if *walletFlag == "" {
		return nil
	}
	wallet, err := solana.PublicKeyFromBase58(*walletFlag)
	if err != nil {
		return fmt.Errorf("invalid wallet %q: %w", *walletFlag, err)
	}

	if *verifyFlag != "" {
		return verifyProof(tree, wallet, *verifyFlag, *amountFlag)
	}

	proof, ok := tree.Proof(wallet)
	if !ok {
		return fmt.Errorf("wallet %s is not in the tree", wallet)
	}
	var amount uint64
	for _, e := range tree.Entries() {
		if e.Wallet == wallet {
			amount = e.Amount
			break
		}
	}
	fmt.Printf("amount: %d\n", amount)
	fmt.Println("proof:")
	for _, p := range proof {
		fmt.Printf("  %s\n", hex.EncodeToString(p[:]))
	}
	return nil
}

func verifyProof(tree *merkle.Tree, wallet solana.PublicKey, proofJSON, amountStr string) error {
	var hexes []string
	if err := json.Unmarshal([]byte(proofJSON), &hexes); err != nil {
		return fmt.Errorf("invalid proof: %w", err)
	}
	proof := make([][32]byte, len(hexes))
	for i, h := range hexes {
		raw, err := hex.DecodeString(h)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("invalid proof element %q", h)
		}
		copy(proof[i][:], raw)
	}

	var amount uint64
	if _, err := fmt.Sscanf(amountStr, "%d", &amount); err != nil {
		return fmt.Errorf("invalid --amount %q: %w", amountStr, err)
	}

	if !merkle.Verify(tree.Root(), wallet, amount, proof) {
		return fmt.Errorf("proof does NOT verify for wallet %s amount %d", wallet, amount)
	}
	fmt.Println("proof verifies")
	return nil
}
