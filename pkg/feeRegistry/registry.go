package feeRegistry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Layr-Labs/feeinfo-go/pkg/messages"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrRateLimited   = errors.New("too many fee updates from remote")
	ErrUnsigned      = errors.New("fee update is not signed")
	ErrChainMismatch = errors.New("fee update is for a different chain")
	ErrStaleNonce    = errors.New("fee update nonce is not newer than the stored one")
)

// RegistryConfig configures which fee updates are accepted.
type RegistryConfig struct {
	// ChainID is the only chain fee updates are accepted for.
	ChainID *big.Int
	// RateLimit is the number of fee updates per second accepted from one
	// remote. Zero disables rate limiting.
	RateLimit float64
	RateBurst int
}

// Registry is the consumer side of fee updates: it verifies each update and
// keeps the newest one per (token network, channel, signer).
type Registry struct {
	store   persistence.IFeeInfoPersistence
	config  RegistryConfig
	logger  *zap.Logger
	limiter *remoteRateLimiter

	// serializes the load, nonce check and save sequence
	mu  sync.Mutex
	now func() time.Time
}

func NewRegistry(store persistence.IFeeInfoPersistence, cfg RegistryConfig, logger *zap.Logger) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("fee info store is required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id must be a positive integer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		store:  store,
		config: RegistryConfig{ChainID: new(big.Int).Set(cfg.ChainID), RateLimit: cfg.RateLimit, RateBurst: cfg.RateBurst},
		logger: logger,
		now:    time.Now,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		r.limiter = newRemoteRateLimiter(cfg.RateLimit, burst)
	}
	return r, nil
}

// HandleFeeInfo verifies a received fee update and stores it. Signature
// format and recovery errors from the signing package are returned as is.
func (r *Registry) HandleFeeInfo(ctx context.Context, fi *messages.FeeInfo, remote string) (*persistence.FeeInfoRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fi == nil {
		return nil, fmt.Errorf("fee info cannot be nil")
	}

	if r.limiter != nil && !r.limiter.Allow(remote) {
		r.logger.Sugar().Debugw("Rate limited fee update", "remote", remote)
		return nil, ErrRateLimited
	}

	if !fi.IsSigned() {
		return nil, ErrUnsigned
	}

	if fi.ChainID().Cmp(r.config.ChainID) != 0 {
		return nil, fmt.Errorf("%w: got %s, expected %s", ErrChainMismatch, fi.ChainID(), r.config.ChainID)
	}

	signer, err := fi.Signer()
	if err != nil {
		return nil, err
	}

	record := &persistence.FeeInfoRecord{
		FeeInfo:    fi.Copy(),
		Signer:     *signer,
		ReceivedAt: r.now().Unix(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.LoadFeeInfo(record.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to load stored fee info: %w", err)
	}
	if existing != nil && fi.Nonce().Cmp(existing.FeeInfo.Nonce()) <= 0 {
		return nil, fmt.Errorf("%w: got %s, stored %s", ErrStaleNonce, fi.Nonce(), existing.FeeInfo.Nonce())
	}

	if err := r.store.SaveFeeInfo(record); err != nil {
		return nil, fmt.Errorf("failed to save fee info: %w", err)
	}

	r.logger.Sugar().Infow("Accepted fee update",
		"token_network", fi.TokenNetworkAddress().Hex(),
		"channel", fi.ChannelIdentifier().String(),
		"signer", signer.Hex(),
		"nonce", fi.Nonce().String(),
		"percentage_fee", fi.PercentageFee().String(),
	)
	return record, nil
}

// GetFeeInfo returns the stored update for key, or nil.
func (r *Registry) GetFeeInfo(key persistence.FeeInfoKey) (*persistence.FeeInfoRecord, error) {
	return r.store.LoadFeeInfo(key)
}

func (r *Registry) ListFeeInfos(tokenNetworkAddress common.Address) ([]*persistence.FeeInfoRecord, error) {
	return r.store.ListFeeInfos(tokenNetworkAddress)
}

func (r *Registry) HealthCheck() error {
	return r.store.HealthCheck()
}

func (r *Registry) ChainID() *big.Int {
	return new(big.Int).Set(r.config.ChainID)
}
