package rewards

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStoreConfig configures a PGStore.
type PGStoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *PGStoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

// PGStore implements Store on a pgx connection pool. Token amounts live in
// NUMERIC(39,0) columns and cross the wire as decimal strings: they cover the
// full u64 range, so they never pass through a float or a signed 64-bit
// integer.
type PGStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewPGStore(cfg PGStoreConfig) (*PGStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PGStore{log: cfg.Logger, pool: cfg.Pool}, nil
}

func (s *PGStore) PointBalances(ctx context.Context) ([]PointBalance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.user_id, p.wallet, p.points,
		       COALESCE((
		           SELECT r.cumulative_amount::text
		           FROM user_rewards r
		           WHERE r.user_id = p.user_id
		           ORDER BY r.created_at DESC, r.id DESC
		           LIMIT 1
		       ), '0') AS previous_cumulative
		FROM user_points p
		ORDER BY p.user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query point balances: %w", err)
	}
	defer rows.Close()

	var balances []PointBalance
	for rows.Next() {
		var (
			b    PointBalance
			prev string
		)
		if err := rows.Scan(&b.UserID, &b.Wallet, &b.Points, &prev); err != nil {
			return nil, fmt.Errorf("failed to scan point balance: %w", err)
		}
		b.PreviousCumulative, err = parseAmount(prev)
		if err != nil {
			return nil, fmt.Errorf("user %s has invalid cumulative amount: %w", b.UserID, err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (s *PGStore) CreateDistribution(ctx context.Context, dist *Distribution, userRewards []*UserReward) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO distributions (id, merkle_root, total_new_amount, total_points, entry_count, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
	`, dist.ID, hex.EncodeToString(dist.MerkleRoot[:]), formatAmount(dist.TotalNewAmount),
		dist.TotalPoints, dist.EntryCount, dist.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert distribution: %w", err)
	}

	for _, r := range userRewards {
		_, err = tx.Exec(ctx, `
			INSERT INTO user_rewards
			    (id, distribution_id, user_id, wallet, cumulative_amount, points_converted, amount_earned, merkle_proof, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8, $9)
		`, r.ID, r.DistributionID, r.UserID, r.Wallet, formatAmount(r.CumulativeAmount),
			r.PointsConverted, formatAmount(r.AmountEarned), r.MerkleProof, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert user reward for %s: %w", r.Wallet, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit distribution: %w", err)
	}
	s.log.Debug("pgstore: distribution persisted", "id", dist.ID, "rewards", len(userRewards))
	return nil
}

func (s *PGStore) MarkDistributionSubmitted(ctx context.Context, id uuid.UUID, submitTx string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE distributions SET submit_tx = $2, submitted_at = $3 WHERE id = $1
	`, id, submitTx, at)
	if err != nil {
		return fmt.Errorf("failed to mark distribution submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("distribution %s not found", id)
	}
	return nil
}

const userRewardColumns = `
	id, distribution_id, user_id, wallet, cumulative_amount::text,
	points_converted, amount_earned::text, merkle_proof, created_at`

func (s *PGStore) UserRewardByID(ctx context.Context, id uuid.UUID) (*UserReward, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userRewardColumns+` FROM user_rewards WHERE id = $1`, id)
	return scanUserReward(row)
}

func (s *PGStore) LatestUserRewardByWallet(ctx context.Context, wallet string) (*UserReward, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userRewardColumns+`
		FROM user_rewards
		WHERE wallet = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, wallet)
	return scanUserReward(row)
}

func (s *PGStore) DistributionRewards(ctx context.Context, distributionID uuid.UUID) ([]*UserReward, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userRewardColumns+`
		FROM user_rewards
		WHERE distribution_id = $1
		ORDER BY user_id
	`, distributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution rewards: %w", err)
	}
	defer rows.Close()

	var out []*UserReward
	for rows.Next() {
		r, err := scanUserReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) ClaimEventByTxSignature(ctx context.Context, txSignature string) (*ClaimEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, wallet, amount_claimed::text, cumulative_claimed::text, reward_id, tx_signature, claimed_at
		FROM claim_events
		WHERE tx_signature = $1
	`, txSignature)

	var (
		ev                 ClaimEvent
		amount, cumulative string
	)
	err := row.Scan(&ev.ID, &ev.UserID, &ev.Wallet, &amount, &cumulative, &ev.RewardID, &ev.TxSignature, &ev.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan claim event: %w", err)
	}
	if ev.AmountClaimed, err = parseAmount(amount); err != nil {
		return nil, fmt.Errorf("claim event %s has invalid amount: %w", ev.ID, err)
	}
	if ev.CumulativeClaimed, err = parseAmount(cumulative); err != nil {
		return nil, fmt.Errorf("claim event %s has invalid cumulative: %w", ev.ID, err)
	}
	return &ev, nil
}

func (s *PGStore) UserClaimedTotal(ctx context.Context, userID uuid.UUID) (*big.Int, error) {
	var total string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_claimed), 0)::text
		FROM claim_events
		WHERE user_id = $1
	`, userID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to sum claimed total: %w", err)
	}
	sum, ok := new(big.Int).SetString(total, 10)
	if !ok {
		return nil, fmt.Errorf("invalid claimed total %q for user %s", total, userID)
	}
	return sum, nil
}

func (s *PGStore) InsertClaimEvent(ctx context.Context, event *ClaimEvent) (bool, error) {
	// ON CONFLICT DO NOTHING makes the idempotency check atomic: two
	// concurrent requests carrying the same signature cannot both insert.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO claim_events
		    (id, user_id, wallet, amount_claimed, cumulative_claimed, reward_id, tx_signature, claimed_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)
		ON CONFLICT (tx_signature) DO NOTHING
	`, event.ID, event.UserID, event.Wallet, formatAmount(event.AmountClaimed),
		formatAmount(event.CumulativeClaimed), event.RewardID, event.TxSignature, event.ClaimedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert claim event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanUserReward(row pgx.Row) (*UserReward, error) {
	var (
		r                  UserReward
		cumulative, earned string
	)
	err := row.Scan(&r.ID, &r.DistributionID, &r.UserID, &r.Wallet, &cumulative,
		&r.PointsConverted, &earned, &r.MerkleProof, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user reward: %w", err)
	}
	if r.CumulativeAmount, err = parseAmount(cumulative); err != nil {
		return nil, fmt.Errorf("reward %s has invalid cumulative amount: %w", r.ID, err)
	}
	if r.AmountEarned, err = parseAmount(earned); err != nil {
		return nil, fmt.Errorf("reward %s has invalid earned amount: %w", r.ID, err)
	}
	return &r, nil
}

func formatAmount(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}

// parseAmount converts a stored decimal string into a u64, rejecting anything
// outside the token's domain. Amount strings are never compared directly:
// lexicographic order disagrees with numeric order whenever digit counts
// differ.
func parseAmount(s string) (uint64, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, fmt.Errorf("not a decimal integer: %q", s)
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("out of u64 range: %q", s)
	}
	return v.Uint64(), nil
}
