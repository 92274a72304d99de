package rewards

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushkarm029/yap-rewards/pkg/logger/testlog"
	"github.com/pushkarm029/yap-rewards/pkg/merkle"
)

type fakeChain struct {
	pool      uint64
	poolErr   error
	submitTx  string
	submitErr error

	submittedAmount uint64
	submittedRoot   [32]byte
	submitCalls     int
}

func (f *fakeChain) AvailablePool(context.Context) (uint64, error) {
	return f.pool, f.poolErr
}

func (f *fakeChain) SubmitRoot(_ context.Context, amount uint64, root [32]byte) (string, error) {
	f.submitCalls++
	f.submittedAmount = amount
	f.submittedRoot = root
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitTx, nil
}

func newTestDistributor(t *testing.T, store Store, chain ChainClient) *Distributor {
	t.Helper()
	d, err := NewDistributor(DistributorConfig{
		Logger: testlog.New(),
		Store:  store,
		Chain:  chain,
		Clock:  clockwork.NewFakeClock(),
	})
	require.NoError(t, err)
	return d
}

func TestDistributor_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("full cycle", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.balances = []PointBalance{
			{UserID: uuid.New(), Wallet: testWallet(0).String(), Points: 1},
			{UserID: uuid.New(), Wallet: testWallet(1).String(), PreviousCumulative: 1_000, Points: 3},
		}
		chain := &fakeChain{pool: 4_000_000, submitTx: testSig(1)}
		d := newTestDistributor(t, store, chain)

		result, err := d.Run(ctx)
		require.NoError(t, err)
		assert.False(t, result.NothingToDistribute)
		assert.Equal(t, 2, result.UsersProcessed)
		assert.Equal(t, uint64(4_000_000), result.TotalNewAmount)
		assert.Equal(t, testSig(1), result.SubmitTx)
		require.NoError(t, result.SubmitErr)

		// Committed leaves carry cumulative amounts and the submitted root
		// matches a tree rebuilt from the stored rewards.
		rewards, err := store.DistributionRewards(ctx, result.DistributionID)
		require.NoError(t, err)
		require.Len(t, rewards, 2)
		entries := make([]merkle.Entry, len(rewards))
		for i, r := range rewards {
			pk, err := solana.PublicKeyFromBase58(r.Wallet)
			require.NoError(t, err)
			entries[i] = merkle.Entry{Wallet: pk, Amount: r.CumulativeAmount}
			assert.True(t, merkle.Verify(result.MerkleRoot, pk, r.CumulativeAmount, mustDecodeProof(t, r.MerkleProof)))
		}
		assert.Equal(t, uint64(4_000_000), chain.submittedAmount)
		assert.Equal(t, result.MerkleRoot, chain.submittedRoot)

		dist := store.distributions[result.DistributionID]
		require.NotNil(t, dist)
		assert.Equal(t, testSig(1), dist.SubmitTx)
		require.NotNil(t, dist.SubmittedAt)
	})

	t.Run("nothing to distribute", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		chain := &fakeChain{pool: 4_000_000}
		d := newTestDistributor(t, store, chain)

		result, err := d.Run(ctx)
		require.NoError(t, err)
		assert.True(t, result.NothingToDistribute)
		assert.Zero(t, chain.submitCalls)
		assert.Empty(t, store.distributions)
	})

	t.Run("pool query failure fails the cycle", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.balances = []PointBalance{
			{UserID: uuid.New(), Wallet: testWallet(0).String(), Points: 1},
		}
		chain := &fakeChain{poolErr: errors.New("rpc unreachable")}
		d := newTestDistributor(t, store, chain)

		_, err := d.Run(ctx)
		require.Error(t, err)
		assert.Empty(t, store.distributions)
	})

	t.Run("balance query failure fails the cycle", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.balancesErr = errors.New("db down")
		chain := &fakeChain{pool: 1_000}
		d := newTestDistributor(t, store, chain)

		_, err := d.Run(ctx)
		require.Error(t, err)
		assert.Zero(t, chain.submitCalls)
	})

	t.Run("submit failure still persists the distribution", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.balances = []PointBalance{
			{UserID: uuid.New(), Wallet: testWallet(0).String(), Points: 1},
		}
		chain := &fakeChain{pool: 1_000, submitErr: errors.New("blockhash expired")}
		d := newTestDistributor(t, store, chain)

		result, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Error(t, result.SubmitErr)
		assert.Empty(t, result.SubmitTx)
		assert.Len(t, store.distributions, 1)

		dist := store.distributions[result.DistributionID]
		assert.Empty(t, dist.SubmitTx)
		assert.Nil(t, dist.SubmittedAt)
		// One attempt only; resubmission is an operator action.
		assert.Equal(t, 1, chain.submitCalls)
	})

	t.Run("persist failure does not reach the chain", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.balances = []PointBalance{
			{UserID: uuid.New(), Wallet: testWallet(0).String(), Points: 1},
		}
		store.createErr = errors.New("constraint violation")
		chain := &fakeChain{pool: 1_000}
		d := newTestDistributor(t, store, chain)

		_, err := d.Run(ctx)
		require.Error(t, err)
		assert.Zero(t, chain.submitCalls)
	})
}

func mustDecodeProof(t *testing.T, data []byte) [][32]byte {
	t.Helper()
	proof, err := DecodeProof(data)
	require.NoError(t, err)
	return proof
}
