// Package chain talks to the on-chain rewards program: it mirrors the
// program's emission rate limit and submits distribution roots. The client is
// constructed once at process start and injected wherever needed.
package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/pushkarm029/yap-rewards/pkg/retry"
)

// secondsPerYear is the emission window the program rate-limits over.
const secondsPerYear = 365 * 24 * 60 * 60

// configSeed is the PDA seed of the program's global config account.
var configSeed = []byte("config")

// configDiscriminator tags the config account on chain; the program writes
// it at initialization and checks it on every instruction.
var configDiscriminator = [8]byte{'y', 'a', 'p', 'c', 'o', 'n', 'f', 'g'}

// ProgramConfig is the program's global config account, borsh-encoded on
// chain. Field order is the account's wire layout.
type ProgramConfig struct {
	Discriminator      [8]byte
	Mint               solana.PublicKey
	Vault              solana.PublicKey
	PendingClaims      solana.PublicKey
	MerkleRoot         [32]byte
	MerkleUpdater      solana.PublicKey
	CurrentSupply      uint64
	LastInflationTS    int64
	LastDistributionTS int64
	Admin              solana.PublicKey
	InflationRateBPS   uint16
	Bump               uint8
}

// RPCClient is the subset of the Solana RPC surface the client uses.
type RPCClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solanarpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetTokenAccountBalanceResult, error)
	GetSlot(ctx context.Context, commitment solanarpc.CommitmentType) (uint64, error)
	GetBlockTime(ctx context.Context, slot uint64) (*solana.UnixTimeSeconds, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
}

// Config configures a Client.
type Config struct {
	Logger    *slog.Logger
	RPC       RPCClient
	ProgramID solana.PublicKey
	// Updater signs Distribute transactions. It must match the program
	// config's merkle_updater.
	Updater solana.PrivateKey
	Retry   retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if cfg.Updater == nil {
		return errors.New("updater key is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Client implements the on-chain surface of the rewards program.
type Client struct {
	log       *slog.Logger
	rpc       RPCClient
	programID solana.PublicKey
	configPDA solana.PublicKey
	updater   solana.PrivateKey
	retryCfg  retry.Config
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	configPDA, _, err := solana.FindProgramAddress([][]byte{configSeed}, cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive config PDA: %w", err)
	}
	return &Client{
		log:       cfg.Logger,
		rpc:       cfg.RPC,
		programID: cfg.ProgramID,
		configPDA: configPDA,
		updater:   cfg.Updater,
		retryCfg:  cfg.Retry,
	}, nil
}

// FetchConfig reads and decodes the program's config account.
func (c *Client) FetchConfig(ctx context.Context) (*ProgramConfig, error) {
	var result *solanarpc.GetAccountInfoResult
	err := retry.Do(ctx, c.retryCfg, func() error {
		var err error
		result, err = c.rpc.GetAccountInfo(ctx, c.configPDA)
		observeChainRequest("getAccountInfo", err)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config account %s: %w", c.configPDA, err)
	}
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("config account %s does not exist", c.configPDA)
	}

	var cfg ProgramConfig
	if err := bin.NewBorshDecoder(result.Value.Data.GetBinary()).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config account: %w", err)
	}
	if cfg.Discriminator != configDiscriminator {
		return nil, fmt.Errorf("account %s is not a config account (discriminator %q)", c.configPDA, cfg.Discriminator[:])
	}
	return &cfg, nil
}

// AvailablePool mirrors the program's emission formula:
//
//	available = elapsedSeconds * vaultBalance / secondsPerYear
//
// with elapsed measured from the config's last distribution timestamp to the
// chain's own block time. Every input is queried, never assumed: computing
// against stale local state could authorize more than the program will
// accept. Any RPC failure is a hard failure of the distribution cycle.
func (c *Client) AvailablePool(ctx context.Context) (uint64, error) {
	cfg, err := c.FetchConfig(ctx)
	if err != nil {
		return 0, err
	}

	vaultBalance, err := c.vaultBalance(ctx, cfg.Vault)
	if err != nil {
		return 0, err
	}

	now, err := c.chainTime(ctx)
	if err != nil {
		return 0, err
	}

	elapsed := now - cfg.LastDistributionTS
	if elapsed < 0 {
		elapsed = 0
	}

	// u64 * i64 products overflow 64 bits; the program does this in u128.
	available := new(big.Int).SetInt64(elapsed)
	available.Mul(available, new(big.Int).SetUint64(vaultBalance))
	available.Div(available, big.NewInt(secondsPerYear))

	c.log.Debug("chain: available pool",
		"elapsed_s", elapsed, "vault", vaultBalance, "available", available.String())

	if !available.IsUint64() {
		// elapsed/secondsPerYear < 1 in practice, so this is unreachable
		// unless the clock data is corrupt; cap at the vault either way.
		return vaultBalance, nil
	}
	avail := available.Uint64()
	if avail > vaultBalance {
		avail = vaultBalance
	}
	return avail, nil
}

func (c *Client) vaultBalance(ctx context.Context, vault solana.PublicKey) (uint64, error) {
	var result *solanarpc.GetTokenAccountBalanceResult
	err := retry.Do(ctx, c.retryCfg, func() error {
		var err error
		result, err = c.rpc.GetTokenAccountBalance(ctx, vault, solanarpc.CommitmentFinalized)
		observeChainRequest("getTokenAccountBalance", err)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch vault balance of %s: %w", vault, err)
	}
	if result == nil || result.Value == nil {
		return 0, fmt.Errorf("vault %s has no balance value", vault)
	}
	balance, ok := new(big.Int).SetString(result.Value.Amount, 10)
	if !ok || balance.Sign() < 0 || !balance.IsUint64() {
		return 0, fmt.Errorf("vault %s has invalid balance %q", vault, result.Value.Amount)
	}
	return balance.Uint64(), nil
}

// chainTime returns the cluster's block time at the latest finalized slot.
func (c *Client) chainTime(ctx context.Context) (int64, error) {
	var blockTime *solana.UnixTimeSeconds
	err := retry.Do(ctx, c.retryCfg, func() error {
		slot, err := c.rpc.GetSlot(ctx, solanarpc.CommitmentFinalized)
		if err != nil {
			observeChainRequest("getSlot", err)
			return err
		}
		blockTime, err = c.rpc.GetBlockTime(ctx, slot)
		observeChainRequest("getBlockTime", err)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch chain time: %w", err)
	}
	if blockTime == nil {
		return 0, errors.New("chain returned no block time")
	}
	return int64(*blockTime), nil
}

// SubmitRoot sends the program's Distribute instruction with the cycle's
// total amount and merkle root. It is sent exactly once: the caller treats
// failures as best-effort and leaves resubmission to an operator, because
// blind retries against the rate limiter can double-spend the emission
// window.
func (c *Client) SubmitRoot(ctx context.Context, amount uint64, root [32]byte) (string, error) {
	cfg, err := c.FetchConfig(ctx)
	if err != nil {
		return "", err
	}

	recent, err := c.rpc.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
	if err != nil {
		observeChainRequest("getLatestBlockhash", err)
		return "", fmt.Errorf("failed to fetch recent blockhash: %w", err)
	}
	observeChainRequest("getLatestBlockhash", nil)

	ix := solana.NewInstruction(
		c.programID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(c.updater.PublicKey(), false, true),
			solana.NewAccountMeta(c.configPDA, true, false),
			solana.NewAccountMeta(cfg.Vault, true, false),
			solana.NewAccountMeta(cfg.PendingClaims, true, false),
			solana.NewAccountMeta(cfg.Mint, false, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		EncodeDistribute(amount, root),
	)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		recent.Value.Blockhash,
		solana.TransactionPayer(c.updater.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build distribute transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.updater.PublicKey()) {
			return &c.updater
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to sign distribute transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		PreflightCommitment: solanarpc.CommitmentFinalized,
	})
	observeChainRequest("sendTransaction", err)
	if err != nil {
		return "", fmt.Errorf("failed to send distribute transaction: %w", err)
	}

	c.log.Info("chain: submitted distribution root",
		"amount", amount, "tx", sig.String())
	return sig.String(), nil
}

// EncodeDistribute encodes the Distribute instruction data: the borsh enum
// tag, the amount as u64 LE, and the 32-byte root.
func EncodeDistribute(amount uint64, root [32]byte) []byte {
	const distributeTag = 2
	data := make([]byte, 0, 1+8+32)
	data = append(data, distributeTag)
	data = binary.LittleEndian.AppendUint64(data, amount)
	data = append(data, root[:]...)
	return data
}
