package redis

import (
	"math/big"
	"os"
	"testing"

	"github.com/Layr-Labs/feeinfo-go/pkg/logger"
	"github.com/Layr-Labs/feeinfo-go/pkg/messages"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenNetworkA = common.HexToAddress("0x2a1d3e4c5b6a7980a1b2c3d4e5f60718293a4b5c")
	signerA       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	signerB       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// getTestRedisAddress uses REDIS_TEST_ADDRESS if set, otherwise localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not reachable. Every test gets its
// own key prefix so runs never see each other's data.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15,
		KeyPrefix: "test-" + uuid.NewString() + ":",
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
	}
	t.Cleanup(func() { _ = rp.Close() })
	return rp
}

func newRecord(t *testing.T, channel int64, signer common.Address, nonce int64) *persistence.FeeInfoRecord {
	t.Helper()
	fi, err := messages.NewFeeInfo(tokenNetworkA.Hex(), big.NewInt(channel), big.NewInt(1), big.NewInt(nonce), big.NewInt(5000), nil)
	require.NoError(t, err)
	fi.SetSignature(make([]byte, 65))
	return &persistence.FeeInfoRecord{FeeInfo: fi, Signer: signer, ReceivedAt: 1700000000}
}

func TestRedisPersistence_SaveLoadDelete(t *testing.T) {
	rp := requireRedis(t)

	record := newRecord(t, 1, signerA, 3)
	require.NoError(t, rp.SaveFeeInfo(record))

	loaded, err := rp.LoadFeeInfo(record.Key())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, record.FeeInfo.Equal(loaded.FeeInfo))

	require.NoError(t, rp.DeleteFeeInfo(record.Key()))
	loaded, err = rp.LoadFeeInfo(record.Key())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	assert.NoError(t, rp.DeleteFeeInfo(record.Key()))
}

func TestRedisPersistence_List(t *testing.T) {
	rp := requireRedis(t)

	require.NoError(t, rp.SaveFeeInfo(newRecord(t, 10, signerA, 1)))
	require.NoError(t, rp.SaveFeeInfo(newRecord(t, 2, signerB, 1)))
	require.NoError(t, rp.SaveFeeInfo(newRecord(t, 2, signerA, 1)))

	records, err := rp.ListFeeInfos(tokenNetworkA)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(2), records[0].FeeInfo.ChannelIdentifier().Int64())
	assert.Equal(t, signerA, records[0].Signer)
	assert.Equal(t, int64(10), records[2].FeeInfo.ChannelIdentifier().Int64())

	empty, err := rp.ListFeeInfos(common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisPersistence_CloseAndHealthCheck(t *testing.T) {
	rp := requireRedis(t)

	require.NoError(t, rp.HealthCheck())
	require.NoError(t, rp.Close())
	require.NoError(t, rp.Close())

	assert.ErrorIs(t, rp.HealthCheck(), persistence.ErrClosed)
	assert.ErrorIs(t, rp.SaveFeeInfo(newRecord(t, 1, signerA, 1)), persistence.ErrClosed)
}

func TestRedisPersistence_Config(t *testing.T) {
	_, err := NewRedisPersistence(nil, nil)
	assert.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, nil)
	assert.Error(t, err)
}
