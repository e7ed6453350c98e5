package inMemoryTransportSigner

import (
	"testing"

	"github.com/Layr-Labs/feeinfo-go/pkg/logger"
	"github.com/Layr-Labs/feeinfo-go/pkg/signing"
	"github.com/Layr-Labs/feeinfo-go/pkg/transportSigner"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewECDSAInMemoryTransportSigner(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hexutil.Encode(crypto.FromECDSA(key))

	for _, input := range []string{keyHex, keyHex[2:]} {
		signer, err := NewECDSAInMemoryTransportSigner(input, testLogger)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.Address())
	}

	_, err = NewECDSAInMemoryTransportSigner("0x1234", testLogger)
	assert.Error(t, err)
}

func TestInMemoryTransportSigner_SignMessage(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewInMemoryTransportSigner(key, testLogger)

	data := []byte("canonical bytes")
	sig, err := signer.SignMessage(data)
	require.NoError(t, err)
	require.Len(t, sig, signing.SignatureLength)

	recovered, err := signing.RecoverSigner(sig, data)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestCreateSignedMessage(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewInMemoryTransportSigner(key, testLogger)

	data := []byte("payload")
	msg, err := transportSigner.CreateSignedMessage(signer, data)
	require.NoError(t, err)

	assert.Equal(t, data, msg.Payload)
	assert.Equal(t, signing.MessageHash(data), msg.Hash[:])
	assert.Equal(t, signer.Address(), msg.Signer)
	require.NoError(t, signing.VerifySigner(msg.Signature, data, signer.Address()))
}
