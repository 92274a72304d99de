package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/pushkarm029/yap-rewards/pkg/chain"
	"github.com/pushkarm029/yap-rewards/pkg/logger"
	"github.com/pushkarm029/yap-rewards/pkg/metrics"
	"github.com/pushkarm029/yap-rewards/pkg/postgres"
	"github.com/pushkarm029/yap-rewards/pkg/rewards"
	"github.com/pushkarm029/yap-rewards/pkg/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", "0.0.0.0:8080", "Address to listen on for HTTP requests")

	// PostgreSQL configuration
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set PG_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set PG_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "yap_rewards", "PostgreSQL database name (or set PG_DATABASE env var)")
	pgUsernameFlag := flag.String("pg-username", "", "PostgreSQL username (or set PG_USERNAME env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set PG_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode (or set PG_SSLMODE env var)")
	migrateFlag := flag.Bool("migrate", true, "Run database migrations on startup")

	// Solana configuration
	rpcURLFlag := flag.String("rpc-url", solanarpc.MainNetBeta_RPC, "Solana RPC endpoint (or set SOLANA_RPC_URL env var)")
	programIDFlag := flag.String("program-id", "", "Rewards program id (or set YAP_PROGRAM_ID env var)")
	updaterKeyFileFlag := flag.String("updater-key-file", "", "Path to the merkle updater keypair file (or set YAP_UPDATER_KEY env var with the base58 key)")

	// HTTP surface configuration
	allowedOriginsFlag := flag.StringSlice("allowed-origins", nil, "CORS allowed origins (or set ALLOWED_ORIGINS env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 15*time.Second, "Maximum time to wait for graceful shutdown")

	flag.Parse()

	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	if v := os.Getenv("PG_HOST"); v != "" {
		*pgHostFlag = v
	}
	if v := os.Getenv("PG_PORT"); v != "" {
		*pgPortFlag = v
	}
	if v := os.Getenv("PG_DATABASE"); v != "" {
		*pgDatabaseFlag = v
	}
	if v := os.Getenv("PG_USERNAME"); v != "" {
		*pgUsernameFlag = v
	}
	if v := os.Getenv("PG_PASSWORD"); v != "" {
		*pgPasswordFlag = v
	}
	if v := os.Getenv("PG_SSLMODE"); v != "" {
		*pgSSLModeFlag = v
	}
	if v := os.Getenv("SOLANA_RPC_URL"); v != "" {
		*rpcURLFlag = v
	}
	if v := os.Getenv("YAP_PROGRAM_ID"); v != "" {
		*programIDFlag = v
	}

	distributionSecret := os.Getenv("DISTRIBUTION_SECRET")
	if distributionSecret == "" {
		return fmt.Errorf("DISTRIBUTION_SECRET env var is required")
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     dsn,
			Release: fmt.Sprintf("rewardsd@%s", version),
		}); err != nil {
			log.Warn("failed to initialize sentry, continuing without it", "error", err)
		} else {
			defer sentry.Flush(5 * time.Second)
		}
	}

	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid program id %q: %w", *programIDFlag, err)
	}

	updater, err := loadUpdaterKey(*updaterKeyFileFlag)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgCfg := postgres.Config{
		Host:     *pgHostFlag,
		Port:     *pgPortFlag,
		Database: *pgDatabaseFlag,
		Username: *pgUsernameFlag,
		Password: *pgPasswordFlag,
		SSLMode:  *pgSSLModeFlag,
	}
	if *migrateFlag {
		if err := pgCfg.Validate(); err != nil {
			return err
		}
		if err := postgres.Migrate(log, pgCfg.ConnStr()); err != nil {
			return err
		}
	}
	pool, err := postgres.Connect(ctx, log, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := rewards.NewPGStore(rewards.PGStoreConfig{Logger: log, Pool: pool})
	if err != nil {
		return err
	}

	chainClient, err := chain.NewClient(chain.Config{
		Logger:    log,
		RPC:       solanarpc.New(*rpcURLFlag),
		ProgramID: programID,
		Updater:   updater,
	})
	if err != nil {
		return err
	}

	distributor, err := rewards.NewDistributor(rewards.DistributorConfig{
		Logger: log,
		Store:  store,
		Chain:  chainClient,
	})
	if err != nil {
		return err
	}

	claims, err := rewards.NewClaimLedger(rewards.ClaimLedgerConfig{
		Logger: log,
		Store:  store,
	})
	if err != nil {
		return err
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	srv, err := server.New(server.Config{
		Logger:             log,
		ListenAddr:         *listenAddrFlag,
		ShutdownTimeout:    *shutdownTimeoutFlag,
		VersionInfo:        server.VersionInfo{Version: version, Commit: commit, Date: date},
		DistributionSecret: distributionSecret,
		AllowedOrigins:     *allowedOriginsFlag,
		Ready:              pool.Ping,
		Distributor:        distributor,
		Claims:             claims,
	})
	if err != nil {
		return err
	}

	log.Info("rewardsd starting", "version", version, "commit", commit, "rpc", *rpcURLFlag, "program", programID)
	return srv.Run(ctx)
}

// loadUpdaterKey reads the merkle updater key from the YAP_UPDATER_KEY env
// var (base58) or from a solana-keygen JSON file.
func loadUpdaterKey(file string) (solana.PrivateKey, error) {
	if raw := os.Getenv("YAP_UPDATER_KEY"); raw != "" {
		key, err := solana.PrivateKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid YAP_UPDATER_KEY: %w", err)
		}
		return key, nil
	}
	if file == "" {
		return nil, fmt.Errorf("updater key is required: set YAP_UPDATER_KEY or --updater-key-file")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load updater key from %s: %w", file, err)
	}
	return key, nil
}
