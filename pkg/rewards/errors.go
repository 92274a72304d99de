package rewards

import "errors"

// The claim path distinguishes malformed requests, requests for someone
// else's reward, and well-formed requests the current state does not permit.
// Handlers map each class to its own status code and never let them reach the
// generic error path.
var (
	ErrInvalidSignature = errors.New("rewards: invalid transaction signature")
	ErrInvalidWallet    = errors.New("rewards: invalid wallet")
	ErrRewardNotFound   = errors.New("rewards: reward not found")
	ErrNotYourReward    = errors.New("rewards: reward belongs to a different user")
	ErrNothingToClaim   = errors.New("rewards: nothing to claim")
)
