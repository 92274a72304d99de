package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pushkarm029/yap-rewards/pkg/merkle"
)

// ClaimLedgerConfig configures a ClaimLedger.
type ClaimLedgerConfig struct {
	Logger *slog.Logger
	Store  Store
	Clock  clockwork.Clock
}

func (cfg *ClaimLedgerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// ClaimLedger converts a user's monotonically increasing committed total into
// one-time claimable deltas, idempotent per transaction signature.
type ClaimLedger struct {
	log   *slog.Logger
	store Store
	clock clockwork.Clock
}

func NewClaimLedger(cfg ClaimLedgerConfig) (*ClaimLedger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ClaimLedger{
		log:   cfg.Logger,
		store: cfg.Store,
		clock: cfg.Clock,
	}, nil
}

// ClaimResult is the outcome of a claim submission.
type ClaimResult struct {
	// AlreadyRecorded is true when the transaction signature was seen before:
	// a replay, reported as success so client retries behave identically to
	// their first attempt.
	AlreadyRecorded   bool
	AmountClaimed     uint64
	CumulativeClaimed uint64
}

// RecordClaim records a claim of rewardID by the authenticated wallet.
//
// The signature replay check runs before any other validation so that
// retried submissions behave identically regardless of retry timing. The
// final insert is conditional on the signature's uniqueness at the storage
// layer, which closes the check-then-insert race between concurrent
// duplicates.
func (l *ClaimLedger) RecordClaim(ctx context.Context, wallet string, rewardID uuid.UUID, txSignature string) (ClaimResult, error) {
	if err := ValidateTxSignature(txSignature); err != nil {
		return ClaimResult{}, err
	}

	existing, err := l.store.ClaimEventByTxSignature(ctx, txSignature)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to look up claim by signature: %w", err)
	}
	if existing != nil {
		l.log.Info("claims: replayed claim transaction", "tx", txSignature, "wallet", wallet)
		return ClaimResult{
			AlreadyRecorded:   true,
			AmountClaimed:     existing.AmountClaimed,
			CumulativeClaimed: existing.CumulativeClaimed,
		}, nil
	}

	reward, err := l.store.UserRewardByID(ctx, rewardID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to look up reward: %w", err)
	}
	if reward == nil {
		return ClaimResult{}, ErrRewardNotFound
	}
	if reward.Wallet != wallet {
		return ClaimResult{}, ErrNotYourReward
	}

	claimedTotal, err := l.store.UserClaimedTotal(ctx, reward.UserID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to sum claimed total: %w", err)
	}

	// Cumulative amounts are global per user, so the delta is against all
	// prior claims across every distribution. All comparisons run on real
	// integers; an over-claimed state (claimed > cumulative) yields a
	// non-positive delta, not an underflow.
	delta := new(big.Int).SetUint64(reward.CumulativeAmount)
	delta.Sub(delta, claimedTotal)
	if delta.Sign() <= 0 {
		return ClaimResult{}, ErrNothingToClaim
	}

	event := &ClaimEvent{
		ID:                uuid.New(),
		UserID:            reward.UserID,
		Wallet:            reward.Wallet,
		AmountClaimed:     delta.Uint64(),
		CumulativeClaimed: reward.CumulativeAmount,
		RewardID:          reward.ID,
		TxSignature:       txSignature,
		ClaimedAt:         l.clock.Now().UTC(),
	}
	inserted, err := l.store.InsertClaimEvent(ctx, event)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to insert claim event: %w", err)
	}
	if !inserted {
		// Lost a race against a concurrent submission of the same signature.
		l.log.Info("claims: concurrent duplicate claim transaction", "tx", txSignature, "wallet", wallet)
		return ClaimResult{
			AlreadyRecorded:   true,
			AmountClaimed:     event.AmountClaimed,
			CumulativeClaimed: event.CumulativeClaimed,
		}, nil
	}

	l.log.Info("claims: recorded claim",
		"wallet", wallet,
		"reward", rewardID,
		"amount", event.AmountClaimed,
		"cumulative", event.CumulativeClaimed,
		"tx", txSignature)
	return ClaimResult{
		AmountClaimed:     event.AmountClaimed,
		CumulativeClaimed: event.CumulativeClaimed,
	}, nil
}

// ClaimStatus describes what the wallet can currently claim.
type ClaimStatus struct {
	Claimable bool
	RewardID  uuid.UUID
	// Amount is the cumulative committed amount the proof authorizes, not the
	// delta; the chain computes the delta itself against its claim record.
	Amount uint64
	Proof  [][32]byte
}

// Status returns the wallet's current claimable state. The stored proof is
// served as-is when it parses; otherwise the distribution's tree is rebuilt
// from its full entry set and a fresh proof computed.
func (l *ClaimLedger) Status(ctx context.Context, wallet string) (ClaimStatus, error) {
	if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
		return ClaimStatus{}, fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}

	reward, err := l.store.LatestUserRewardByWallet(ctx, wallet)
	if err != nil {
		return ClaimStatus{}, fmt.Errorf("failed to look up latest reward: %w", err)
	}
	if reward == nil {
		return ClaimStatus{}, nil
	}

	claimedTotal, err := l.store.UserClaimedTotal(ctx, reward.UserID)
	if err != nil {
		return ClaimStatus{}, fmt.Errorf("failed to sum claimed total: %w", err)
	}

	delta := new(big.Int).SetUint64(reward.CumulativeAmount)
	delta.Sub(delta, claimedTotal)
	if delta.Sign() <= 0 {
		return ClaimStatus{}, nil
	}

	proof, err := DecodeProof(reward.MerkleProof)
	if err != nil {
		l.log.Warn("claims: stored proof unusable, rebuilding tree",
			"reward", reward.ID, "wallet", wallet, "error", err)
		proof, err = l.rebuildProof(ctx, reward)
		if err != nil {
			return ClaimStatus{}, err
		}
	}

	return ClaimStatus{
		Claimable: true,
		RewardID:  reward.ID,
		Amount:    reward.CumulativeAmount,
		Proof:     proof,
	}, nil
}

func (l *ClaimLedger) rebuildProof(ctx context.Context, reward *UserReward) ([][32]byte, error) {
	rows, err := l.store.DistributionRewards(ctx, reward.DistributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load distribution rewards: %w", err)
	}

	entries := make([]merkle.Entry, 0, len(rows))
	for _, r := range rows {
		pk, err := solana.PublicKeyFromBase58(r.Wallet)
		if err != nil {
			return nil, fmt.Errorf("stored reward %s has invalid wallet %q: %w", r.ID, r.Wallet, err)
		}
		entries = append(entries, merkle.Entry{Wallet: pk, Amount: r.CumulativeAmount})
	}

	tree, err := merkle.Build(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild distribution tree: %w", err)
	}

	pk, _ := solana.PublicKeyFromBase58(reward.Wallet)
	proof, ok := tree.Proof(pk)
	if !ok {
		return nil, fmt.Errorf("wallet %s missing from rebuilt tree of distribution %s", reward.Wallet, reward.DistributionID)
	}
	if !merkle.Verify(tree.Root(), pk, reward.CumulativeAmount, proof) {
		return nil, fmt.Errorf("rebuilt proof failed verification for wallet %s", reward.Wallet)
	}
	return proof, nil
}
