package inMemoryTransportSigner

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/Layr-Labs/feeinfo-go/pkg/signing"
	"github.com/Layr-Labs/feeinfo-go/pkg/transportSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

type InMemoryTransportSigner struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ transportSigner.IMessageSigner = (*InMemoryTransportSigner)(nil)

// NewECDSAInMemoryTransportSigner loads a hex encoded secp256k1 private key,
// with or without the 0x prefix.
func NewECDSAInMemoryTransportSigner(
	privateKeyHex string,
	logger *zap.Logger,
) (*InMemoryTransportSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}

	return NewInMemoryTransportSigner(key, logger), nil
}

func NewInMemoryTransportSigner(
	key *ecdsa.PrivateKey,
	logger *zap.Logger,
) *InMemoryTransportSigner {
	return &InMemoryTransportSigner{
		logger:     logger,
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// data is the raw message bytes to sign
func (its *InMemoryTransportSigner) SignMessage(data []byte) ([]byte, error) {
	sig, err := signing.SignMessage(its.privateKey, data)
	if err != nil {
		return nil, err
	}
	its.logger.Sugar().Debugw("Signed message", "signer", its.address.Hex(), "payloadLength", len(data))
	return sig, nil
}

func (its *InMemoryTransportSigner) Address() common.Address {
	return its.address
}
