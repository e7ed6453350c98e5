package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/feeinfo-go/pkg/config"
	"github.com/Layr-Labs/feeinfo-go/pkg/feeRegistry"
	"github.com/Layr-Labs/feeinfo-go/pkg/logger"
	"github.com/Layr-Labs/feeinfo-go/pkg/node"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	badgerPersistence "github.com/Layr-Labs/feeinfo-go/pkg/persistence/badger"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence/memory"
	redisPersistence "github.com/Layr-Labs/feeinfo-go/pkg/persistence/redis"
)

func main() {
	app := &cli.App{
		Name:  "pfs-server",
		Usage: "Path-finding service fee update receiver",
		Description: `Receives signed FeeInfo messages from channel participants, verifies the
signature and nonce of each one and keeps the newest update per channel and signer.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   6000,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvPFSPort},
			},
			&cli.Uint64Flag{
				Name:     "chain-id",
				Aliases:  []string{"chain"},
				Usage:    fmt.Sprintf("Ethereum chain ID: %s", config.GetSupportedChainIDsString()),
				EnvVars:  []string{config.EnvPFSChainID},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Usage:   "Fee update storage: memory, badger or redis",
				Value:   config.PersistenceTypeBadger.String(),
				EnvVars: []string{config.EnvPFSPersistenceType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Usage:   "Badger data directory",
				Value:   "./data/pfs",
				EnvVars: []string{config.EnvPFSDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis server address (host:port)",
				EnvVars: []string{config.EnvPFSRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvPFSRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number (0-15)",
				EnvVars: []string{config.EnvPFSRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every Redis key",
				EnvVars: []string{config.EnvPFSRedisKeyPrefix},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Fee updates per second accepted from one remote (0 disables)",
				Value:   config.DefaultRateLimit,
				EnvVars: []string{config.EnvPFSRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Usage:   "Burst size of the per remote rate limit",
				Value:   config.DefaultRateBurst,
				EnvVars: []string{config.EnvPFSRateBurst},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvPFSVerbose},
			},
		},
		Action: runPFSServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runPFSServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	pfsConfig := parsePFSConfig(c)
	if err := pfsConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l.Sugar().Infow("Using chain", "name", pfsConfig.ChainName, "chain_id", pfsConfig.ChainID)

	store, err := newPersistence(&pfsConfig.Persistence, l)
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close persistence", "error", err)
		}
	}()

	registry, err := feeRegistry.NewRegistry(store, feeRegistry.RegistryConfig{
		ChainID:   new(big.Int).SetUint64(uint64(pfsConfig.ChainID)),
		RateLimit: pfsConfig.RateLimit,
		RateBurst: pfsConfig.RateBurst,
	}, l)
	if err != nil {
		return fmt.Errorf("failed to create fee registry: %w", err)
	}

	n, err := node.NewNode(node.Config{Port: pfsConfig.Port, Logger: l}, registry)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	l.Sugar().Infow("PFS server running", "port", pfsConfig.Port, "persistence", pfsConfig.Persistence.Type)
	l.Sugar().Infow("Available endpoints",
		"submit", "POST /fee_info",
		"query", "GET /fee_info",
		"schema", "GET /fee_info/schema",
		"health", "GET /health")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Sugar().Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()

	return n.Stop(shutdownCtx)
}

func parsePFSConfig(c *cli.Context) *config.PFSServerConfig {
	cfg := &config.PFSServerConfig{
		Port:    c.Int("port"),
		ChainID: config.ChainId(c.Uint64("chain-id")),
		Persistence: config.PersistenceConfig{
			Type:     config.PersistenceType(c.String("persistence-type")),
			DataPath: c.String("data-path"),
		},
		RateLimit: c.Float64("rate-limit"),
		RateBurst: c.Int("rate-burst"),
		Debug:     c.Bool("verbose"),
		Verbose:   c.Bool("verbose"),
	}
	if cfg.Persistence.Type == config.PersistenceTypeRedis {
		cfg.Persistence.Redis = &config.RedisConfig{
			Address:   c.String("redis-address"),
			Password:  c.String("redis-password"),
			DB:        c.Int("redis-db"),
			KeyPrefix: c.String("redis-key-prefix"),
		}
	}
	return cfg
}

// newPersistence opens the fee update store selected by cfg, which must already be validated.
func newPersistence(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IFeeInfoPersistence, error) {
	switch cfg.Type {
	case config.PersistenceTypeMemory:
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceTypeBadger:
		bp, err := badgerPersistence.NewBadgerPersistence(cfg.DataPath, l)
		if err != nil {
			return nil, err
		}
		return bp, nil
	case config.PersistenceTypeRedis:
		rp, err := redisPersistence.NewRedisPersistence(&redisPersistence.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
		if err != nil {
			return nil, err
		}
		return rp, nil
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.Type)
	}
}
