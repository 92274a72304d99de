package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/pushkarm029/yap-rewards/pkg/metrics"
	"github.com/pushkarm029/yap-rewards/pkg/rewards"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(log *slog.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(log, w, status, errorResponse{Success: false, Error: msg})
}

// formatUint renders token amounts as decimal strings. JSON numbers lose
// precision above 2^53, token amounts are full u64.
func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

type distributionResponse struct {
	Success                bool    `json:"success"`
	UsersProcessed         int     `json:"usersProcessed"`
	TotalNewAmount         string  `json:"totalNewAmount"`
	TotalAllocatablePoints float64 `json:"totalAllocatablePoints"`
	MerkleRoot             string  `json:"merkleRoot,omitempty"`
	SubmitTx               string  `json:"submitTx,omitempty"`
	DistributionID         string  `json:"distributionId,omitempty"`
	Message                string  `json:"message,omitempty"`
}

// handleDistribute runs one distribution cycle. A chain-submission failure
// alone is still a success, just without a submitTx; everything else fatal
// returns 500.
func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	result, err := s.cfg.Distributor.Run(r.Context())
	if err != nil {
		s.log.Error("server: distribution cycle failed", "error", err)
		writeError(s.log, w, http.StatusInternalServerError, "distribution failed")
		return
	}

	resp := distributionResponse{
		Success:                true,
		UsersProcessed:         result.UsersProcessed,
		TotalNewAmount:         formatUint(result.TotalNewAmount),
		TotalAllocatablePoints: result.TotalPoints,
	}
	if result.NothingToDistribute {
		resp.Message = "nothing to distribute"
		writeJSON(s.log, w, http.StatusOK, resp)
		return
	}

	resp.MerkleRoot = hex.EncodeToString(result.MerkleRoot[:])
	resp.DistributionID = result.DistributionID.String()
	resp.SubmitTx = result.SubmitTx
	if result.SubmitErr != nil {
		resp.Message = "distribution persisted, on-chain submission failed"
	}
	writeJSON(s.log, w, http.StatusOK, resp)
}

type claimStatusResponse struct {
	Claimable bool     `json:"claimable"`
	RewardID  string   `json:"rewardId,omitempty"`
	Amount    string   `json:"amount,omitempty"`
	Proof     []string `json:"proof,omitempty"`
}

func (s *Server) handleClaimStatus(w http.ResponseWriter, r *http.Request) {
	wallet := WalletFromContext(r.Context())

	status, err := s.cfg.Claims.Status(r.Context(), wallet)
	if err != nil {
		if errors.Is(err, rewards.ErrInvalidWallet) {
			writeError(s.log, w, http.StatusBadRequest, "invalid wallet")
			return
		}
		s.log.Error("server: claim status failed", "wallet", wallet, "error", err)
		writeError(s.log, w, http.StatusInternalServerError, "internal error")
		return
	}

	if !status.Claimable {
		writeJSON(s.log, w, http.StatusOK, claimStatusResponse{Claimable: false})
		return
	}

	proof := make([]string, len(status.Proof))
	for i, p := range status.Proof {
		proof[i] = hex.EncodeToString(p[:])
	}
	writeJSON(s.log, w, http.StatusOK, claimStatusResponse{
		Claimable: true,
		RewardID:  status.RewardID.String(),
		Amount:    formatUint(status.Amount),
		Proof:     proof,
	})
}

type claimRequest struct {
	RewardID string `json:"rewardId"`
	ClaimTx  string `json:"claimTx"`
}

type claimResponse struct {
	Success       bool   `json:"success"`
	AmountClaimed string `json:"amountClaimed,omitempty"`
	Message       string `json:"message,omitempty"`
}

// handleClaimSubmit records a claim. Validation and authorization errors are
// mapped to their own statuses and never reach the generic 500 path.
func (s *Server) handleClaimSubmit(w http.ResponseWriter, r *http.Request) {
	wallet := WalletFromContext(r.Context())

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RewardID == "" || req.ClaimTx == "" {
		writeError(s.log, w, http.StatusBadRequest, "rewardId and claimTx are required")
		return
	}
	rewardID, err := uuid.Parse(req.RewardID)
	if err != nil {
		writeError(s.log, w, http.StatusBadRequest, "invalid rewardId")
		return
	}

	result, err := s.cfg.Claims.RecordClaim(r.Context(), wallet, rewardID, req.ClaimTx)
	if err != nil {
		switch {
		case errors.Is(err, rewards.ErrInvalidSignature):
			metrics.ClaimsTotal.WithLabelValues("invalid").Inc()
			writeError(s.log, w, http.StatusBadRequest, "invalid transaction signature")
		case errors.Is(err, rewards.ErrRewardNotFound):
			metrics.ClaimsTotal.WithLabelValues("not_found").Inc()
			writeError(s.log, w, http.StatusNotFound, "reward not found")
		case errors.Is(err, rewards.ErrNotYourReward):
			metrics.ClaimsTotal.WithLabelValues("forbidden").Inc()
			writeError(s.log, w, http.StatusForbidden, "not your reward")
		case errors.Is(err, rewards.ErrNothingToClaim):
			metrics.ClaimsTotal.WithLabelValues("nothing").Inc()
			writeError(s.log, w, http.StatusConflict, "nothing to claim")
		default:
			metrics.ClaimsTotal.WithLabelValues("error").Inc()
			s.log.Error("server: claim failed", "wallet", wallet, "reward", rewardID, "error", err)
			writeError(s.log, w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if result.AlreadyRecorded {
		metrics.ClaimsTotal.WithLabelValues("replay").Inc()
		writeJSON(s.log, w, http.StatusOK, claimResponse{Success: true, Message: "already recorded"})
		return
	}
	metrics.ClaimsTotal.WithLabelValues("ok").Inc()
	writeJSON(s.log, w, http.StatusOK, claimResponse{
		Success:       true,
		AmountClaimed: formatUint(result.AmountClaimed),
	})
}
