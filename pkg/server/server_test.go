package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushkarm029/yap-rewards/pkg/logger/testlog"
	"github.com/pushkarm029/yap-rewards/pkg/rewards"
)

const testSecret = "test-distribution-secret"

// memStore is a minimal in-memory rewards.Store for handler tests.
type memStore struct {
	balances []rewards.PointBalance
	rewards  map[uuid.UUID]*rewards.UserReward
	claims   []*rewards.ClaimEvent
}

func newMemStore() *memStore {
	return &memStore{rewards: make(map[uuid.UUID]*rewards.UserReward)}
}

func (m *memStore) PointBalances(context.Context) ([]rewards.PointBalance, error) {
	return m.balances, nil
}

func (m *memStore) CreateDistribution(_ context.Context, _ *rewards.Distribution, userRewards []*rewards.UserReward) error {
	for _, r := range userRewards {
		m.rewards[r.ID] = r
	}
	return nil
}

func (m *memStore) MarkDistributionSubmitted(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}

func (m *memStore) UserRewardByID(_ context.Context, id uuid.UUID) (*rewards.UserReward, error) {
	return m.rewards[id], nil
}

func (m *memStore) LatestUserRewardByWallet(_ context.Context, wallet string) (*rewards.UserReward, error) {
	var latest *rewards.UserReward
	for _, r := range m.rewards {
		if r.Wallet == wallet && (latest == nil || r.CreatedAt.After(latest.CreatedAt)) {
			latest = r
		}
	}
	return latest, nil
}

func (m *memStore) DistributionRewards(_ context.Context, distributionID uuid.UUID) ([]*rewards.UserReward, error) {
	var out []*rewards.UserReward
	for _, r := range m.rewards {
		if r.DistributionID == distributionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ClaimEventByTxSignature(_ context.Context, txSignature string) (*rewards.ClaimEvent, error) {
	for _, c := range m.claims {
		if c.TxSignature == txSignature {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memStore) UserClaimedTotal(_ context.Context, userID uuid.UUID) (*big.Int, error) {
	total := new(big.Int)
	for _, c := range m.claims {
		if c.UserID == userID {
			total.Add(total, new(big.Int).SetUint64(c.AmountClaimed))
		}
	}
	return total, nil
}

func (m *memStore) InsertClaimEvent(_ context.Context, event *rewards.ClaimEvent) (bool, error) {
	for _, c := range m.claims {
		if c.TxSignature == event.TxSignature {
			return false, nil
		}
	}
	m.claims = append(m.claims, event)
	return true, nil
}

type memChain struct {
	pool uint64
	tx   string
}

func (c *memChain) AvailablePool(context.Context) (uint64, error) { return c.pool, nil }
func (c *memChain) SubmitRoot(context.Context, uint64, [32]byte) (string, error) {
	return c.tx, nil
}

func newTestServer(t *testing.T, store rewards.Store, chain rewards.ChainClient) *Server {
	t.Helper()
	log := testlog.New()

	distributor, err := rewards.NewDistributor(rewards.DistributorConfig{
		Logger: log,
		Store:  store,
		Chain:  chain,
		Clock:  clockwork.NewFakeClock(),
	})
	require.NoError(t, err)

	ledger, err := rewards.NewClaimLedger(rewards.ClaimLedgerConfig{
		Logger: log,
		Store:  store,
		Clock:  clockwork.NewFakeClock(),
	})
	require.NoError(t, err)

	srv, err := New(Config{
		Logger:             log,
		ListenAddr:         "127.0.0.1:0",
		DistributionSecret: testSecret,
		Distributor:        distributor,
		Claims:             ledger,
	})
	require.NoError(t, err)
	return srv
}

// signedHeaders returns wallet auth headers for the given key.
func signedHeaders(t *testing.T, wallet *solana.Wallet) http.Header {
	t.Helper()
	message := "login:" + time.Now().Format(time.RFC3339)
	sig, err := wallet.PrivateKey.Sign([]byte(message))
	require.NoError(t, err)

	h := http.Header{}
	h.Set(headerWallet, wallet.PublicKey().String())
	h.Set(headerMessage, message)
	h.Set(headerSignature, base64.StdEncoding.EncodeToString(sig[:]))
	return h
}

func validSig(seed byte) string {
	raw := make([]byte, 64)
	for i := range raw {
		raw[i] = seed + byte(i) + 1
	}
	return base58.Encode(raw)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newMemStore(), &memChain{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// No readiness probe configured means always ready.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Distribute(t *testing.T) {
	t.Parallel()

	t.Run("requires secret", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, newMemStore(), &memChain{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/distributions", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("runs a cycle", func(t *testing.T) {
		t.Parallel()
		wallet := solana.NewWallet()
		store := newMemStore()
		store.balances = []rewards.PointBalance{
			{UserID: uuid.New(), Wallet: wallet.PublicKey().String(), Points: 2},
		}
		srv := newTestServer(t, store, &memChain{pool: 1_000_000, tx: validSig(1)})

		req := httptest.NewRequest(http.MethodPost, "/v1/distributions", nil)
		req.Header.Set(headerDistributionSecret, testSecret)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Success        bool   `json:"success"`
			UsersProcessed int    `json:"usersProcessed"`
			TotalNewAmount string `json:"totalNewAmount"`
			MerkleRoot     string `json:"merkleRoot"`
			SubmitTx       string `json:"submitTx"`
			DistributionID string `json:"distributionId"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 1, resp.UsersProcessed)
		assert.Equal(t, "1000000", resp.TotalNewAmount)
		assert.Len(t, resp.MerkleRoot, 64)
		assert.Equal(t, validSig(1), resp.SubmitTx)
		assert.NotEmpty(t, resp.DistributionID)
	})

	t.Run("nothing to distribute", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, newMemStore(), &memChain{pool: 1_000_000})

		req := httptest.NewRequest(http.MethodPost, "/v1/distributions", nil)
		req.Header.Set(headerDistributionSecret, testSecret)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "nothing to distribute", resp.Message)
	})
}

func TestServer_WalletAuth(t *testing.T) {
	t.Parallel()

	t.Run("missing headers", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, newMemStore(), &memChain{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/claims/status", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key signature", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, newMemStore(), &memChain{})

		// Signed by one key, presented as another wallet.
		imposter := solana.NewWallet()
		victim := solana.NewWallet()
		req := httptest.NewRequest(http.MethodGet, "/v1/claims/status", nil)
		req.Header = signedHeaders(t, imposter)
		req.Header.Set(headerWallet, victim.PublicKey().String())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestServer_ClaimFlow(t *testing.T) {
	t.Parallel()

	wallet := solana.NewWallet()
	userID := uuid.New()

	seed := func(store *memStore, cumulative uint64) *rewards.UserReward {
		reward := &rewards.UserReward{
			ID:               uuid.New(),
			DistributionID:   uuid.New(),
			UserID:           userID,
			Wallet:           wallet.PublicKey().String(),
			CumulativeAmount: cumulative,
			CreatedAt:        time.Unix(1000, 0),
		}
		store.rewards[reward.ID] = reward
		return reward
	}

	t.Run("status when nothing rewarded", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, newMemStore(), &memChain{})

		req := httptest.NewRequest(http.MethodGet, "/v1/claims/status", nil)
		req.Header = signedHeaders(t, wallet)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Claimable bool `json:"claimable"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Claimable)
	})

	t.Run("claim and replay", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		reward := seed(store, 750_000)
		srv := newTestServer(t, store, &memChain{})

		body, err := json.Marshal(map[string]string{
			"rewardId": reward.ID.String(),
			"claimTx":  validSig(2),
		})
		require.NoError(t, err)

		submit := func() *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/v1/claims", bytes.NewReader(body))
			req.Header = signedHeaders(t, wallet)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			return rec
		}

		rec := submit()
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Success       bool   `json:"success"`
			AmountClaimed string `json:"amountClaimed"`
			Message       string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "750000", resp.AmountClaimed)

		// Same signature again: success, flagged as already recorded, and
		// only one claim event exists.
		rec = submit()
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "already recorded", resp.Message)
		assert.Len(t, store.claims, 1)
	})

	t.Run("error taxonomy", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		reward := seed(store, 750_000)
		srv := newTestServer(t, store, &memChain{})

		submit := func(rewardID, claimTx string, signer *solana.Wallet) *httptest.ResponseRecorder {
			body, err := json.Marshal(map[string]string{"rewardId": rewardID, "claimTx": claimTx})
			require.NoError(t, err)
			req := httptest.NewRequest(http.MethodPost, "/v1/claims", bytes.NewReader(body))
			req.Header = signedHeaders(t, signer)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			return rec
		}

		// Malformed transaction signature.
		assert.Equal(t, http.StatusBadRequest, submit(reward.ID.String(), "bogus", wallet).Code)
		// Malformed reward id.
		assert.Equal(t, http.StatusBadRequest, submit("not-a-uuid", validSig(3), wallet).Code)
		// Unknown reward.
		assert.Equal(t, http.StatusNotFound, submit(uuid.New().String(), validSig(4), wallet).Code)
		// Someone else's reward.
		assert.Equal(t, http.StatusForbidden, submit(reward.ID.String(), validSig(5), solana.NewWallet()).Code)

		// Claim it, then a fresh signature has nothing left.
		require.Equal(t, http.StatusOK, submit(reward.ID.String(), validSig(6), wallet).Code)
		assert.Equal(t, http.StatusConflict, submit(reward.ID.String(), validSig(7), wallet).Code)
	})
}
