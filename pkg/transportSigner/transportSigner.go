package transportSigner

import (
	"github.com/Layr-Labs/feeinfo-go/pkg/signing"
	"github.com/ethereum/go-ethereum/common"
)

// SignedMessage pairs signing material with the signature produced over it.
type SignedMessage struct {
	Payload   []byte         `json:"payload"`   // Canonical bytes that were signed
	Hash      [32]byte       `json:"hash"`      // eth_sign prefixed keccak256(payload)
	Signature []byte         `json:"signature"` // 65 byte r||s||v, v in {27,28}
	Signer    common.Address `json:"signer"`
}

// IMessageSigner signs raw message bytes on behalf of a fee update sender.
// The private key never leaves the implementation.
type IMessageSigner interface {
	// SignMessage signs data using the eth_sign convention and returns the
	// 65 byte recoverable signature
	SignMessage(data []byte) ([]byte, error)

	// Address returns the address signatures recover to
	Address() common.Address
}

// CreateSignedMessage signs data with signer and bundles the result.
func CreateSignedMessage(signer IMessageSigner, data []byte) (*SignedMessage, error) {
	sig, err := signer.SignMessage(data)
	if err != nil {
		return nil, err
	}
	return &SignedMessage{
		Payload:   data,
		Hash:      common.BytesToHash(signing.MessageHash(data)),
		Signature: sig,
		Signer:    signer.Address(),
	}, nil
}
