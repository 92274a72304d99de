// Package rewards converts the user-points ledger into a merkle-committed
// token distribution and reconciles claims against it.
package rewards

import (
	"time"

	"github.com/google/uuid"
)

// PointBalance is one user's allocatable points for a distribution cycle,
// read from the points ledger the social app maintains.
type PointBalance struct {
	UserID             uuid.UUID
	Wallet             string
	PreviousCumulative uint64
	Points             float64
}

// Distribution is one committed distribution cycle. Immutable after creation
// except the submission fields, which a best-effort on-chain call sets.
type Distribution struct {
	ID             uuid.UUID
	MerkleRoot     [32]byte
	TotalNewAmount uint64
	TotalPoints    float64
	EntryCount     int
	SubmitTx       string
	SubmittedAt    *time.Time
	CreatedAt      time.Time
}

// UserReward is one user's committed share of one distribution. The
// CumulativeAmount matches the leaf committed for this wallet, so a single
// proof authorizes claiming all-time earnings.
type UserReward struct {
	ID               uuid.UUID
	DistributionID   uuid.UUID
	UserID           uuid.UUID
	Wallet           string
	CumulativeAmount uint64
	PointsConverted  float64
	AmountEarned     uint64
	// MerkleProof is the precomputed proof stored as a JSON array of hex
	// strings. It may be empty or unparseable for old rows, in which case the
	// tree is rebuilt from the distribution's entries on read.
	MerkleProof []byte
	CreatedAt   time.Time
}

// ClaimEvent is one successful claim. Append-only; TxSignature is the
// idempotency key and is unique at the storage layer.
type ClaimEvent struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Wallet            string
	AmountClaimed     uint64
	CumulativeClaimed uint64
	RewardID          uuid.UUID
	TxSignature       string
	ClaimedAt         time.Time
}
