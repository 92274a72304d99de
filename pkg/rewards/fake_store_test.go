package rewards

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// fakeStore is an in-memory Store with the same conditional-insert semantics
// as the Postgres implementation.
type fakeStore struct {
	mu            sync.Mutex
	balances      []PointBalance
	balancesErr   error
	distributions map[uuid.UUID]*Distribution
	rewards       map[uuid.UUID]*UserReward
	claims        []*ClaimEvent
	createErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		distributions: make(map[uuid.UUID]*Distribution),
		rewards:       make(map[uuid.UUID]*UserReward),
	}
}

func (f *fakeStore) PointBalances(context.Context) ([]PointBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	return append([]PointBalance(nil), f.balances...), nil
}

func (f *fakeStore) CreateDistribution(_ context.Context, dist *Distribution, userRewards []*UserReward) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.distributions[dist.ID] = dist
	for _, r := range userRewards {
		f.rewards[r.ID] = r
	}
	return nil
}

func (f *fakeStore) MarkDistributionSubmitted(_ context.Context, id uuid.UUID, submitTx string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.distributions[id]; ok {
		d.SubmitTx = submitTx
		d.SubmittedAt = &at
	}
	return nil
}

func (f *fakeStore) UserRewardByID(_ context.Context, id uuid.UUID) (*UserReward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rewards[id], nil
}

func (f *fakeStore) LatestUserRewardByWallet(_ context.Context, wallet string) (*UserReward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *UserReward
	for _, r := range f.rewards {
		if r.Wallet != wallet {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return latest, nil
}

func (f *fakeStore) DistributionRewards(_ context.Context, distributionID uuid.UUID) ([]*UserReward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*UserReward
	for _, r := range f.rewards {
		if r.DistributionID == distributionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ClaimEventByTxSignature(_ context.Context, txSignature string) (*ClaimEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.claims {
		if c.TxSignature == txSignature {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UserClaimedTotal(_ context.Context, userID uuid.UUID) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := new(big.Int)
	for _, c := range f.claims {
		if c.UserID == userID {
			total.Add(total, new(big.Int).SetUint64(c.AmountClaimed))
		}
	}
	return total, nil
}

func (f *fakeStore) InsertClaimEvent(_ context.Context, event *ClaimEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.claims {
		if c.TxSignature == event.TxSignature {
			return false, nil
		}
	}
	f.claims = append(f.claims, event)
	return true, nil
}

func (f *fakeStore) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.claims)
}

func testWallet(i byte) solana.PublicKey {
	var b [32]byte
	b[0] = i + 1
	b[31] = 0xAB
	return solana.PublicKeyFromBytes(b[:])
}

// testSig builds a well-formed Solana transaction signature: 64 non-zero
// bytes base58-encode to 87 or 88 characters.
func testSig(i byte) string {
	raw := make([]byte, 64)
	for j := range raw {
		raw[j] = byte(0x40) + i + byte(j)
	}
	return base58.Encode(raw)
}
