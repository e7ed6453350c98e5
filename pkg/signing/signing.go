package signing

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

/*
Signatures follow the eth_sign / personal_sign convention so that any wallet
or signing tool can produce them:

	hash      = keccak256("\x19Ethereum Signed Message:\n" || len(message) || message)
	signature = r (32 bytes) || s (32 bytes) || v (1 byte)

v is produced as 27 or 28. The raw recovery ids 0 and 1 are accepted too.
*/

const (
	SignatureLength = crypto.SignatureLength

	// legacyRecoveryOffset is added to the recovery id by Ethereum wallets.
	legacyRecoveryOffset = 27
)

var (
	// ErrInvalidSignatureFormat means the signature bytes do not have the
	// recoverable r||s||v layout. The sender should retransmit.
	ErrInvalidSignatureFormat = errors.New("invalid signature format")

	// ErrSignatureRecovery means the signature is well formed but no public key
	// can be recovered from it.
	ErrSignatureRecovery = errors.New("signature recovery failed")

	// ErrSignerMismatch means recovery succeeded but produced another address.
	ErrSignerMismatch = errors.New("signer mismatch")
)

// MessageHash returns the prefixed keccak256 digest that is signed for message.
func MessageHash(message []byte) []byte {
	return accounts.TextHash(message)
}

// RecoverSigner recovers the address that signed message.
func RecoverSigner(signature []byte, message []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignatureFormat, SignatureLength, len(signature))
	}

	// Copy so the caller's v byte is left untouched
	sig := make([]byte, SignatureLength)
	copy(sig, signature)

	v := sig[crypto.RecoveryIDOffset]
	if v >= legacyRecoveryOffset {
		v -= legacyRecoveryOffset
	}
	if v > 1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery id %d", ErrSignatureRecovery, signature[crypto.RecoveryIDOffset])
	}
	sig[crypto.RecoveryIDOffset] = v

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, false) {
		return common.Address{}, fmt.Errorf("%w: r or s out of range", ErrSignatureRecovery)
	}

	pubKey, err := crypto.SigToPub(MessageHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrSignatureRecovery, err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifySigner checks that signature over message was produced by expected.
func VerifySigner(signature []byte, message []byte, expected common.Address) error {
	signer, err := RecoverSigner(signature, message)
	if err != nil {
		return err
	}
	if signer != expected {
		return fmt.Errorf("%w: expected %s, recovered %s", ErrSignerMismatch, expected.Hex(), signer.Hex())
	}
	return nil
}

// SignMessage signs message the way an Ethereum wallet would, returning a
// 65 byte signature with v in {27, 28}.
func SignMessage(privateKey *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is nil")
	}

	sig, err := crypto.Sign(MessageHash(message), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += legacyRecoveryOffset

	return sig, nil
}
