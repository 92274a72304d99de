package rewards

import (
	"log/slog"
	"math"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// pointScale converts fractional point balances (vote-power weighting gives
// fractions in the 1.0-5.0 range) to integers before any division. Floating
// point never touches token amounts.
const pointScale = 1_000_000_000_000 // 10^12

// Allocation is one user's share of a distribution cycle.
type Allocation struct {
	UserID             uuid.UUID
	Wallet             solana.PublicKey
	Points             float64
	PreviousCumulative uint64
	NewAmount          uint64
	NewCumulative      uint64
}

// CalcResult is the outcome of one distribution calculation. When the points
// ledger holds no allocatable points, Allocations is empty and both totals
// are zero: a "nothing to distribute" cycle, not an error.
type CalcResult struct {
	Allocations    []Allocation
	TotalNewAmount uint64
	TotalPoints    float64
	SkippedWallets int
}

// Calculator turns point balances and a rate-limited pool into exact
// per-user allocations.
type Calculator struct {
	log *slog.Logger
}

func NewCalculator(log *slog.Logger) *Calculator {
	return &Calculator{log: log}
}

// Calculate distributes pool proportionally to each user's points using
// scaled integer arithmetic. Every allocation is floor(scaled * pool /
// totalScaled), which guarantees the sum never exceeds the pool; the small
// remainder stays in the vault and rolls into the next cycle's pool
// measurement.
//
// Users with a malformed wallet keep their points in the denominator but are
// excluded from the result (logged, not fatal): their share is forfeited to
// the remainder rather than redistributed.
func (c *Calculator) Calculate(balances []PointBalance, pool uint64) CalcResult {
	totalScaled := new(big.Int)
	totalPoints := 0.0
	scaled := make([]*big.Int, len(balances))
	for i, b := range balances {
		points := b.Points
		if points < 0 || math.IsNaN(points) || math.IsInf(points, 0) {
			c.log.Warn("calculator: ignoring invalid point balance", "user", b.UserID.String(), "points", b.Points)
			points = 0
		}
		// Scale through big.Float: points*pointScale overflows int64 for
		// balances above ~9.2e6, and a float-to-int64 conversion of an
		// out-of-range value is implementation defined.
		s, _ := new(big.Float).Mul(big.NewFloat(points), big.NewFloat(pointScale)).Int(nil)
		scaled[i] = s
		totalScaled.Add(totalScaled, s)
		totalPoints += points
	}

	if totalScaled.Sign() == 0 {
		c.log.Info("calculator: no allocatable points, nothing to distribute")
		return CalcResult{TotalPoints: totalPoints}
	}

	poolBig := new(big.Int).SetUint64(pool)
	result := CalcResult{
		Allocations: make([]Allocation, 0, len(balances)),
		TotalPoints: totalPoints,
	}
	totalNew := new(big.Int)

	for i, b := range balances {
		wallet, err := solana.PublicKeyFromBase58(b.Wallet)
		if err != nil || wallet.IsZero() {
			c.log.Warn("calculator: skipping user with malformed wallet",
				"user", b.UserID.String(), "wallet", b.Wallet, "error", err)
			result.SkippedWallets++
			continue
		}

		// floor(scaled * pool / totalScaled)
		alloc := new(big.Int).Mul(scaled[i], poolBig)
		alloc.Div(alloc, totalScaled)
		newAmount := alloc.Uint64()

		result.Allocations = append(result.Allocations, Allocation{
			UserID:             b.UserID,
			Wallet:             wallet,
			Points:             b.Points,
			PreviousCumulative: b.PreviousCumulative,
			NewAmount:          newAmount,
			NewCumulative:      b.PreviousCumulative + newAmount,
		})
		totalNew.Add(totalNew, alloc)
	}

	result.TotalNewAmount = totalNew.Uint64()
	return result
}
