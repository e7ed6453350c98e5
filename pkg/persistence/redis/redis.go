package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key layout. Redis has no prefix iteration, so every token network keeps a
// set of the storage keys written under it.
const (
	keyPrefixFeeInfo      = "pfs:feeinfo:"
	keyPrefixNetworkIndex = "pfs:feeinfo_index:"
	keySchemaVersion      = "pfs:metadata:schema_version"
	currentSchemaVersion  = "v1"

	connectTimeout   = 5 * time.Second
	operationTimeout = 5 * time.Second
)

// RedisPersistence stores fee updates in Redis so several PFS instances can share them.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address  string
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "goerli:" gives
	// "goerli:pfs:feeinfo:...". Lets several deployments share one server.
	KeyPrefix string
}

// NewRedisPersistence connects to Redis and validates the schema version.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	rp := &RedisPersistence{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := rp.client.Ping(ctx).Err(); err != nil {
		_ = rp.client.Close()
		return nil, fmt.Errorf("redis at %s is unreachable: %w", cfg.Address, err)
	}
	if err := rp.ensureSchemaVersion(ctx); err != nil {
		_ = rp.client.Close()
		return nil, err
	}

	logger.Sugar().Infow("Connected fee info store to Redis",
		"address", cfg.Address,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	)
	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisPersistence) recordKey(key persistence.FeeInfoKey) string {
	return r.prefixKey(keyPrefixFeeInfo + key.String())
}

func (r *RedisPersistence) indexKey(tokenNetworkAddress common.Address) string {
	return r.prefixKey(keyPrefixNetworkIndex + persistence.TokenNetworkPrefix(tokenNetworkAddress))
}

// ensureSchemaVersion stamps the version with SETNX so concurrent PFS
// instances starting against an empty server agree on it.
func (r *RedisPersistence) ensureSchemaVersion(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	if _, err := r.client.SetNX(ctx, schemaKey, currentSchemaVersion, 0).Result(); err != nil {
		return fmt.Errorf("schema version stamp: %w", err)
	}

	stored, err := r.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("schema version lookup: %w", err)
	}
	if stored != currentSchemaVersion {
		return fmt.Errorf("redis fee info store has schema %q, this build reads %q", stored, currentSchemaVersion)
	}
	return nil
}

// SaveFeeInfo writes the record and its index entry in one transaction
func (r *RedisPersistence) SaveFeeInfo(record *persistence.FeeInfoRecord) error {
	if record == nil || record.FeeInfo == nil {
		return fmt.Errorf("cannot save nil FeeInfoRecord")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalFeeInfoRecord(record)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	key := r.recordKey(record.Key())
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, r.indexKey(record.FeeInfo.TokenNetworkAddress()), key)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save fee info: %w", err)
	}
	return nil
}

// LoadFeeInfo retrieves the record stored under key
func (r *RedisPersistence) LoadFeeInfo(key persistence.FeeInfoKey) (*persistence.FeeInfoRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fee info %s: %w", key, err)
	}

	return persistence.UnmarshalFeeInfoRecord(data)
}

// ListFeeInfos reads the token network index and fetches all records with MGET
func (r *RedisPersistence) ListFeeInfos(tokenNetworkAddress common.Address) ([]*persistence.FeeInfoRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.indexKey(tokenNetworkAddress)
	keys, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read fee info index: %w", err)
	}

	records := make([]*persistence.FeeInfoRecord, 0, len(keys))
	if len(keys) == 0 {
		return records, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fee infos: %w", err)
	}

	for i, val := range values {
		if val == nil {
			// stale index entry
			r.client.SRem(ctx, indexKey, keys[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for FeeInfoRecord", "key", keys[i])
			continue
		}

		record, err := persistence.UnmarshalFeeInfoRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal FeeInfoRecord, skipping", "key", keys[i], "error", err)
			continue
		}
		records = append(records, record)
	}

	persistence.SortRecords(records)
	return records, nil
}

// DeleteFeeInfo removes the record and its index entry
func (r *RedisPersistence) DeleteFeeInfo(key persistence.FeeInfoKey) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	recordKey := r.recordKey(key)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, recordKey)
	pipe.SRem(ctx, r.indexKey(key.TokenNetworkAddress), recordKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete fee info: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck pings the server
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
