package badger

import (
	"math/big"
	"sync"
	"testing"

	"github.com/Layr-Labs/feeinfo-go/pkg/logger"
	"github.com/Layr-Labs/feeinfo-go/pkg/messages"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	tokenNetworkA = common.HexToAddress("0x2a1d3e4c5b6a7980a1b2c3d4e5f60718293a4b5c")
	tokenNetworkB = common.HexToAddress("0x9f8e7d6c5b4a39281706f5e4d3c2b1a098765432")
	signerA       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	signerB       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newTestBadger(t *testing.T, dir string) *BadgerPersistence {
	t.Helper()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(dir, testLogger)
	require.NoError(t, err)
	return bp
}

func newRecord(t *testing.T, tokenNetwork common.Address, channel int64, signer common.Address, nonce int64) *persistence.FeeInfoRecord {
	t.Helper()
	fi, err := messages.NewFeeInfo(tokenNetwork.Hex(), big.NewInt(channel), big.NewInt(1), big.NewInt(nonce), big.NewInt(5000), nil)
	require.NoError(t, err)
	fi.SetSignature(make([]byte, 65))
	return &persistence.FeeInfoRecord{FeeInfo: fi, Signer: signer, ReceivedAt: 1700000000 + nonce}
}

func TestBadgerPersistence_SaveAndLoad(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	record := newRecord(t, tokenNetworkA, 1, signerA, 7)
	require.NoError(t, bp.SaveFeeInfo(record))

	loaded, err := bp.LoadFeeInfo(record.Key())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, record.FeeInfo.Equal(loaded.FeeInfo))
	assert.Equal(t, signerA, loaded.Signer)
	assert.Equal(t, record.ReceivedAt, loaded.ReceivedAt)
}

func TestBadgerPersistence_Load_NotFound(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	loaded, err := bp.LoadFeeInfo(persistence.FeeInfoKey{
		TokenNetworkAddress: tokenNetworkA,
		ChannelIdentifier:   big.NewInt(99),
		Signer:              signerA,
	})
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBadgerPersistence_Save_Nil(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	assert.Error(t, bp.SaveFeeInfo(nil))
}

func TestBadgerPersistence_List(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	require.NoError(t, bp.SaveFeeInfo(newRecord(t, tokenNetworkA, 10, signerA, 1)))
	require.NoError(t, bp.SaveFeeInfo(newRecord(t, tokenNetworkA, 2, signerB, 1)))
	require.NoError(t, bp.SaveFeeInfo(newRecord(t, tokenNetworkA, 2, signerA, 1)))
	require.NoError(t, bp.SaveFeeInfo(newRecord(t, tokenNetworkB, 1, signerA, 1)))

	records, err := bp.ListFeeInfos(tokenNetworkA)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// numeric channel order, not lexicographic key order
	assert.Equal(t, int64(2), records[0].FeeInfo.ChannelIdentifier().Int64())
	assert.Equal(t, signerA, records[0].Signer)
	assert.Equal(t, signerB, records[1].Signer)
	assert.Equal(t, int64(10), records[2].FeeInfo.ChannelIdentifier().Int64())

	empty, err := bp.ListFeeInfos(common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBadgerPersistence_List_SkipsCorruptEntries(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	record := newRecord(t, tokenNetworkA, 1, signerA, 1)
	require.NoError(t, bp.SaveFeeInfo(record))

	corruptKey := persistence.FeeInfoKey{TokenNetworkAddress: tokenNetworkA, ChannelIdentifier: big.NewInt(2), Signer: signerA}
	require.NoError(t, bp.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(storageKey(corruptKey), []byte("not json"))
	}))

	records, err := bp.ListFeeInfos(tokenNetworkA)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].FeeInfo.ChannelIdentifier().Int64())

	_, err = bp.LoadFeeInfo(corruptKey)
	assert.Error(t, err)
}

func TestBadgerPersistence_Delete(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	record := newRecord(t, tokenNetworkA, 1, signerA, 1)
	require.NoError(t, bp.SaveFeeInfo(record))
	require.NoError(t, bp.DeleteFeeInfo(record.Key()))

	loaded, err := bp.LoadFeeInfo(record.Key())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	assert.NoError(t, bp.DeleteFeeInfo(record.Key()))
}

func TestBadgerPersistence_Close(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	record := newRecord(t, tokenNetworkA, 1, signerA, 1)

	require.NoError(t, bp.HealthCheck())
	require.NoError(t, bp.Close())
	require.NoError(t, bp.Close())

	assert.ErrorIs(t, bp.SaveFeeInfo(record), persistence.ErrClosed)
	_, err := bp.LoadFeeInfo(record.Key())
	assert.ErrorIs(t, err, persistence.ErrClosed)
	_, err = bp.ListFeeInfos(tokenNetworkA)
	assert.ErrorIs(t, err, persistence.ErrClosed)
	assert.ErrorIs(t, bp.HealthCheck(), persistence.ErrClosed)
}

func TestBadgerPersistence_ThreadSafety(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	var wg sync.WaitGroup
	numGoroutines := 5
	numOperations := 20

	for i := 0; i < numGoroutines; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				assert.NoError(t, bp.SaveFeeInfo(newRecord(t, tokenNetworkA, int64(id), signerA, int64(j))))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				_, err := bp.ListFeeInfos(tokenNetworkA)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	records, err := bp.ListFeeInfos(tokenNetworkA)
	require.NoError(t, err)
	assert.Len(t, records, numGoroutines)
}

func TestBadgerPersistence_AcrossRestarts(t *testing.T) {
	tmpDir := t.TempDir()

	bp1 := newTestBadger(t, tmpDir)
	record := newRecord(t, tokenNetworkA, 5, signerB, 42)
	require.NoError(t, bp1.SaveFeeInfo(record))
	require.NoError(t, bp1.Close())

	bp2 := newTestBadger(t, tmpDir)
	defer func() { _ = bp2.Close() }()

	loaded, err := bp2.LoadFeeInfo(record.Key())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(42), loaded.FeeInfo.Nonce().Int64())
	assert.NoError(t, bp2.HealthCheck())
}

func TestBadgerPersistence_SchemaVersionMismatch(t *testing.T) {
	tmpDir := t.TempDir()

	bp := newTestBadger(t, tmpDir)
	require.NoError(t, bp.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keySchemaVersion), []byte("v0"))
	}))
	require.NoError(t, bp.Close())

	_, err := NewBadgerPersistence(tmpDir, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "this build reads")
}
