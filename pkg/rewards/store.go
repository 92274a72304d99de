package rewards

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary for the rewards system. The production
// implementation is PGStore; tests use an in-memory fake.
type Store interface {
	// PointBalances returns every user's allocatable points together with the
	// cumulative amount committed for them in their latest reward row (zero
	// if they have never been rewarded).
	PointBalances(ctx context.Context) ([]PointBalance, error)

	// CreateDistribution persists a distribution and its reward rows
	// atomically: either the whole cycle commits or none of it does.
	CreateDistribution(ctx context.Context, dist *Distribution, userRewards []*UserReward) error

	// MarkDistributionSubmitted records a successful on-chain root submission.
	MarkDistributionSubmitted(ctx context.Context, id uuid.UUID, submitTx string, at time.Time) error

	// UserRewardByID returns the reward row, or nil if absent.
	UserRewardByID(ctx context.Context, id uuid.UUID) (*UserReward, error)

	// LatestUserRewardByWallet returns the wallet's most recent reward row by
	// distribution creation time, or nil if the wallet has never been
	// rewarded.
	LatestUserRewardByWallet(ctx context.Context, wallet string) (*UserReward, error)

	// DistributionRewards returns all reward rows of a distribution in leaf
	// order, for rebuilding the tree when a stored proof is unusable.
	DistributionRewards(ctx context.Context, distributionID uuid.UUID) ([]*UserReward, error)

	// ClaimEventByTxSignature returns the claim recorded under the signature,
	// or nil if none exists.
	ClaimEventByTxSignature(ctx context.Context, txSignature string) (*ClaimEvent, error)

	// UserClaimedTotal sums AmountClaimed across all of the user's claim
	// events, across all distributions.
	UserClaimedTotal(ctx context.Context, userID uuid.UUID) (*big.Int, error)

	// InsertClaimEvent appends a claim event. The tx signature column is
	// unique at the storage layer; when another event already holds the
	// signature the insert is a no-op and inserted is false. This is what
	// makes concurrent duplicate submissions safe.
	InsertClaimEvent(ctx context.Context, event *ClaimEvent) (inserted bool, err error)
}
