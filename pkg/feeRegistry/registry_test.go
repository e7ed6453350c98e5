package feeRegistry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/feeinfo-go/pkg/messages"
	"github.com/Layr-Labs/feeinfo-go/pkg/packing"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence/memory"
	"github.com/Layr-Labs/feeinfo-go/pkg/signing"
	"github.com/Layr-Labs/feeinfo-go/pkg/transportSigner/inMemoryTransportSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTokenNetwork = "0x2a1d3e4c5b6a7980a1b2c3d4e5f60718293a4b5c"

func newTestRegistry(t *testing.T, cfg RegistryConfig) (*Registry, *memory.MemoryPersistence) {
	t.Helper()
	if cfg.ChainID == nil {
		cfg.ChainID = big.NewInt(1)
	}
	store := memory.NewMemoryPersistence()
	t.Cleanup(func() { _ = store.Close() })

	r, err := NewRegistry(store, cfg, zap.NewNop())
	require.NoError(t, err)
	return r, store
}

func newSigner(t *testing.T) *inMemoryTransportSigner.InMemoryTransportSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return inMemoryTransportSigner.NewInMemoryTransportSigner(key, zap.NewNop())
}

func signedFeeInfo(t *testing.T, signer *inMemoryTransportSigner.InMemoryTransportSigner, chainID, nonce int64) *messages.FeeInfo {
	t.Helper()
	fi, err := messages.NewFeeInfo(testTokenNetwork, big.NewInt(7), big.NewInt(chainID), big.NewInt(nonce), big.NewInt(10000), nil)
	require.NoError(t, err)
	require.NoError(t, fi.Sign(signer))
	return fi
}

func TestNewRegistry_Errors(t *testing.T) {
	store := memory.NewMemoryPersistence()
	defer func() { _ = store.Close() }()

	_, err := NewRegistry(nil, RegistryConfig{ChainID: big.NewInt(1)}, nil)
	assert.Error(t, err)

	_, err = NewRegistry(store, RegistryConfig{}, nil)
	assert.Error(t, err)

	_, err = NewRegistry(store, RegistryConfig{ChainID: big.NewInt(0)}, nil)
	assert.Error(t, err)
}

func TestRegistry_HandleFeeInfo_Accepts(t *testing.T) {
	r, store := newTestRegistry(t, RegistryConfig{})
	signer := newSigner(t)
	fixed := time.Unix(1700000000, 0)
	r.now = func() time.Time { return fixed }

	record, err := r.HandleFeeInfo(context.Background(), signedFeeInfo(t, signer, 1, 1), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), record.Signer)
	assert.Equal(t, fixed.Unix(), record.ReceivedAt)

	stored, err := store.LoadFeeInfo(record.Key())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, record.FeeInfo.Equal(stored.FeeInfo))

	got, err := r.GetFeeInfo(record.Key())
	require.NoError(t, err)
	require.NotNil(t, got)

	list, err := r.ListFeeInfos(common.HexToAddress(testTokenNetwork))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRegistry_HandleFeeInfo_Rejects(t *testing.T) {
	signer := newSigner(t)

	unsigned, err := messages.NewFeeInfo(testTokenNetwork, big.NewInt(7), big.NewInt(1), big.NewInt(1), big.NewInt(0), nil)
	require.NoError(t, err)

	badLength := signedFeeInfo(t, signer, 1, 1)
	badLength.SetSignature(make([]byte, 64))

	zeroSig := signedFeeInfo(t, signer, 1, 1)
	zeroSig.SetSignature(make([]byte, 65))

	tests := []struct {
		name    string
		fi      *messages.FeeInfo
		wantErr error
	}{
		{"unsigned", unsigned, ErrUnsigned},
		{"other chain", signedFeeInfo(t, signer, 5, 1), ErrChainMismatch},
		{"bad signature length", badLength, signing.ErrInvalidSignatureFormat},
		{"unrecoverable signature", zeroSig, signing.ErrSignatureRecovery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(t, RegistryConfig{})
			_, err := r.HandleFeeInfo(context.Background(), tt.fi, "remote")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRegistry_HandleFeeInfo_OversizedNonce(t *testing.T) {
	r, store := newTestRegistry(t, RegistryConfig{})

	tooWide := new(big.Int).Lsh(big.NewInt(1), 256)
	fi, err := messages.NewFeeInfo(testTokenNetwork, big.NewInt(7), big.NewInt(1), tooWide, big.NewInt(0), make([]byte, signing.SignatureLength))
	require.NoError(t, err)

	_, err = r.HandleFeeInfo(context.Background(), fi, "remote")
	require.Error(t, err)
	assert.True(t, errors.Is(err, packing.ErrEncoding))

	records, err := store.ListFeeInfos(common.HexToAddress(testTokenNetwork))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRegistry_HandleFeeInfo_NonceOrdering(t *testing.T) {
	r, _ := newTestRegistry(t, RegistryConfig{})
	signer := newSigner(t)
	ctx := context.Background()

	_, err := r.HandleFeeInfo(ctx, signedFeeInfo(t, signer, 1, 5), "remote")
	require.NoError(t, err)

	_, err = r.HandleFeeInfo(ctx, signedFeeInfo(t, signer, 1, 5), "remote")
	assert.ErrorIs(t, err, ErrStaleNonce)

	_, err = r.HandleFeeInfo(ctx, signedFeeInfo(t, signer, 1, 4), "remote")
	assert.ErrorIs(t, err, ErrStaleNonce)

	record, err := r.HandleFeeInfo(ctx, signedFeeInfo(t, signer, 1, 6), "remote")
	require.NoError(t, err)
	assert.Equal(t, int64(6), record.FeeInfo.Nonce().Int64())

	// nonces are tracked per signer
	_, err = r.HandleFeeInfo(ctx, signedFeeInfo(t, newSigner(t), 1, 1), "remote")
	assert.NoError(t, err)
}

func TestRegistry_HandleFeeInfo_ConcurrentSameNonce(t *testing.T) {
	r, _ := newTestRegistry(t, RegistryConfig{})
	signer := newSigner(t)
	fi := signedFeeInfo(t, signer, 1, 1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.HandleFeeInfo(context.Background(), fi, "remote"); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
}

func TestRegistry_HandleFeeInfo_RateLimit(t *testing.T) {
	r, _ := newTestRegistry(t, RegistryConfig{RateLimit: 1, RateBurst: 2})
	signer := newSigner(t)
	ctx := context.Background()

	for nonce := int64(1); nonce <= 2; nonce++ {
		_, err := r.HandleFeeInfo(ctx, signedFeeInfo(t, signer, 1, nonce), "10.0.0.1")
		require.NoError(t, err)
	}

	_, err := r.HandleFeeInfo(ctx, signedFeeInfo(t, signer, 1, 3), "10.0.0.1")
	assert.ErrorIs(t, err, ErrRateLimited)

	// other remotes have their own bucket
	_, err = r.HandleFeeInfo(ctx, signedFeeInfo(t, signer, 1, 3), "10.0.0.2")
	assert.NoError(t, err)
}

func TestRegistry_HandleFeeInfo_CanceledContext(t *testing.T) {
	r, _ := newTestRegistry(t, RegistryConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.HandleFeeInfo(ctx, signedFeeInfo(t, newSigner(t), 1, 1), "remote")
	assert.ErrorIs(t, err, context.Canceled)
}

type failingStore struct {
	persistence.IFeeInfoPersistence
}

func (failingStore) LoadFeeInfo(persistence.FeeInfoKey) (*persistence.FeeInfoRecord, error) {
	return nil, fmt.Errorf("disk on fire")
}

func TestRegistry_HandleFeeInfo_StoreError(t *testing.T) {
	r, err := NewRegistry(failingStore{}, RegistryConfig{ChainID: big.NewInt(1)}, nil)
	require.NoError(t, err)

	_, err = r.HandleFeeInfo(context.Background(), signedFeeInfo(t, newSigner(t), 1, 1), "remote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestRemoteRateLimiter_Cleanup(t *testing.T) {
	l := newRemoteRateLimiter(1, 1)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.Equal(t, 1, l.size())

	now = now.Add(limiterTTL + limiterCleanupInterval)
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 1, l.size())
}
