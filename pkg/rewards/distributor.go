package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/pushkarm029/yap-rewards/pkg/merkle"
	"github.com/pushkarm029/yap-rewards/pkg/metrics"
)

// ChainClient is the on-chain surface the distributor depends on.
type ChainClient interface {
	// AvailablePool returns the amount the on-chain rate limiter currently
	// authorizes for distribution. Any failure here fails the whole cycle:
	// distributing against a stale or assumed pool risks requesting more than
	// the chain will allow.
	AvailablePool(ctx context.Context) (uint64, error)

	// SubmitRoot submits the merkle root and total amount on chain and
	// returns the transaction signature.
	SubmitRoot(ctx context.Context, amount uint64, root [32]byte) (string, error)
}

// Notifier fans out post-distribution notifications. Implementations are
// best-effort collaborators; failures never fail a cycle.
type Notifier interface {
	NotifyDistribution(ctx context.Context, dist *Distribution, userRewards []*UserReward)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyDistribution(context.Context, *Distribution, []*UserReward) {}

// DistributorConfig configures a Distributor.
type DistributorConfig struct {
	Logger   *slog.Logger
	Store    Store
	Chain    ChainClient
	Notifier Notifier
	Clock    clockwork.Clock
}

func (cfg *DistributorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain client is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Distributor runs one distribution cycle: points in, committed merkle
// distribution out. The scheduler guarantees single-flight per reward
// period; nothing here locks against a concurrent cycle.
type Distributor struct {
	log      *slog.Logger
	store    Store
	chain    ChainClient
	notifier Notifier
	clock    clockwork.Clock
	calc     *Calculator
}

func NewDistributor(cfg DistributorConfig) (*Distributor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Distributor{
		log:      cfg.Logger,
		store:    cfg.Store,
		chain:    cfg.Chain,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		calc:     NewCalculator(cfg.Logger),
	}, nil
}

// DistributionResult summarizes one cycle. SubmitErr distinguishes
// "persisted and submitted on chain" from "persisted, chain submission
// failed": the latter is still a successful cycle, with resubmission left to
// an operator rather than an automatic retry against the rate limiter.
type DistributionResult struct {
	DistributionID      uuid.UUID
	UsersProcessed      int
	TotalNewAmount      uint64
	TotalPoints         float64
	MerkleRoot          [32]byte
	SubmitTx            string
	SubmitErr           error
	NothingToDistribute bool
}

// Run executes one distribution cycle.
func (d *Distributor) Run(ctx context.Context) (DistributionResult, error) {
	started := d.clock.Now()

	// The points ledger and the rate limiter are independent reads; fetch
	// them concurrently. Either failing is fatal for the cycle.
	var (
		balances []PointBalance
		pool     uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances, err = d.store.PointBalances(gctx)
		if err != nil {
			return fmt.Errorf("failed to load point balances: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		pool, err = d.chain.AvailablePool(gctx)
		if err != nil {
			return fmt.Errorf("failed to query rate-limited pool: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.DistributionCyclesTotal.WithLabelValues("error").Inc()
		return DistributionResult{}, err
	}

	d.log.Info("distributor: starting cycle", "users", len(balances), "pool", pool)

	calc := d.calc.Calculate(balances, pool)
	if len(calc.Allocations) == 0 {
		d.log.Info("distributor: nothing to distribute", "total_points", calc.TotalPoints)
		metrics.DistributionCyclesTotal.WithLabelValues("empty").Inc()
		return DistributionResult{NothingToDistribute: true, TotalPoints: calc.TotalPoints}, nil
	}

	entries := make([]merkle.Entry, len(calc.Allocations))
	for i, a := range calc.Allocations {
		entries[i] = merkle.Entry{Wallet: a.Wallet, Amount: a.NewCumulative}
	}
	tree, err := merkle.Build(entries)
	if err != nil {
		metrics.DistributionCyclesTotal.WithLabelValues("error").Inc()
		return DistributionResult{}, fmt.Errorf("failed to build merkle tree: %w", err)
	}

	dist := &Distribution{
		ID:             uuid.New(),
		MerkleRoot:     tree.Root(),
		TotalNewAmount: calc.TotalNewAmount,
		TotalPoints:    calc.TotalPoints,
		EntryCount:     tree.Len(),
		CreatedAt:      started.UTC(),
	}
	userRewards := make([]*UserReward, len(calc.Allocations))
	for i, a := range calc.Allocations {
		proof, ok := tree.Proof(a.Wallet)
		if !ok {
			metrics.DistributionCyclesTotal.WithLabelValues("error").Inc()
			return DistributionResult{}, fmt.Errorf("wallet %s missing from freshly built tree", a.Wallet)
		}
		encoded, err := EncodeProof(proof)
		if err != nil {
			metrics.DistributionCyclesTotal.WithLabelValues("error").Inc()
			return DistributionResult{}, fmt.Errorf("failed to encode proof for %s: %w", a.Wallet, err)
		}
		userRewards[i] = &UserReward{
			ID:               uuid.New(),
			DistributionID:   dist.ID,
			UserID:           a.UserID,
			Wallet:           a.Wallet.String(),
			CumulativeAmount: a.NewCumulative,
			PointsConverted:  a.Points,
			AmountEarned:     a.NewAmount,
			MerkleProof:      encoded,
			CreatedAt:        dist.CreatedAt,
		}
	}

	if err := d.store.CreateDistribution(ctx, dist, userRewards); err != nil {
		metrics.DistributionCyclesTotal.WithLabelValues("error").Inc()
		return DistributionResult{}, fmt.Errorf("failed to persist distribution: %w", err)
	}

	result := DistributionResult{
		DistributionID: dist.ID,
		UsersProcessed: len(userRewards),
		TotalNewAmount: calc.TotalNewAmount,
		TotalPoints:    calc.TotalPoints,
		MerkleRoot:     dist.MerkleRoot,
	}

	// Best-effort, non-blocking for the cycle's success: a failed submission
	// is reported for an operator to resubmit, never retried automatically
	// against the rate-limited program.
	submitTx, err := d.chain.SubmitRoot(ctx, calc.TotalNewAmount, dist.MerkleRoot)
	if err != nil {
		d.log.Error("distributor: on-chain root submission failed",
			"distribution", dist.ID, "amount", calc.TotalNewAmount, "error", err)
		metrics.RootSubmissionsTotal.WithLabelValues("error").Inc()
		result.SubmitErr = err
	} else {
		result.SubmitTx = submitTx
		metrics.RootSubmissionsTotal.WithLabelValues("ok").Inc()
		if err := d.store.MarkDistributionSubmitted(ctx, dist.ID, submitTx, d.clock.Now().UTC()); err != nil {
			// The submission succeeded; only the bookkeeping failed.
			d.log.Error("distributor: failed to record submission", "distribution", dist.ID, "error", err)
		}
	}

	d.notifier.NotifyDistribution(ctx, dist, userRewards)

	d.log.Info("distributor: cycle complete",
		"distribution", dist.ID,
		"users", result.UsersProcessed,
		"skipped_wallets", calc.SkippedWallets,
		"total_new", result.TotalNewAmount,
		"submit_tx", result.SubmitTx,
		"took", d.clock.Since(started))
	metrics.DistributionCyclesTotal.WithLabelValues("ok").Inc()
	metrics.DistributedAmountTotal.Add(float64(calc.TotalNewAmount))
	return result, nil
}
