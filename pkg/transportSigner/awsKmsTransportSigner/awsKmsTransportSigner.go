package awsKmsTransportSigner

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/feeinfo-go/pkg/signing"
	"github.com/Layr-Labs/feeinfo-go/pkg/transportSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultSignTimeout = 30 * time.Second

// IKMSClient is the part of the AWS KMS API used for signing.
// *kms.Client satisfies it.
type IKMSClient interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// AWSKMSTransportSigner signs fee updates with an ECC_SECG_P256K1 key held in
// AWS KMS. The private key never leaves KMS; the public key is fetched once
// at construction to derive the address and the recovery id.
type AWSKMSTransportSigner struct {
	logger      *zap.Logger
	kmsClient   IKMSClient
	keyId       string
	publicKey   []byte
	address     common.Address
	signTimeout time.Duration
}

var _ transportSigner.IMessageSigner = (*AWSKMSTransportSigner)(nil)

// NewAWSKMSTransportSignerFromConfig creates a KMS client from awsCfg.
func NewAWSKMSTransportSignerFromConfig(ctx context.Context, awsCfg aws.Config, keyId string, logger *zap.Logger) (*AWSKMSTransportSigner, error) {
	return NewAWSKMSTransportSigner(ctx, kms.NewFromConfig(awsCfg), keyId, logger)
}

func NewAWSKMSTransportSigner(ctx context.Context, kmsClient IKMSClient, keyId string, logger *zap.Logger) (*AWSKMSTransportSigner, error) {
	if keyId == "" {
		return nil, fmt.Errorf("kms key id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	out, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyId)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", keyId)
	}

	pubKey, err := parseECDSAPublicKey(out.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", keyId)
	}

	signer := &AWSKMSTransportSigner{
		logger:      logger,
		kmsClient:   kmsClient,
		keyId:       keyId,
		publicKey:   crypto.FromECDSAPub(pubKey),
		address:     crypto.PubkeyToAddress(*pubKey),
		signTimeout: defaultSignTimeout,
	}
	logger.Sugar().Infow("Loaded KMS signing key", "keyId", keyId, "address", signer.address.Hex())

	return signer, nil
}

// SignMessage signs the prefixed hash of data, bounded by the default sign timeout.
func (a *AWSKMSTransportSigner) SignMessage(data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.signTimeout)
	defer cancel()
	return a.SignMessageWithContext(ctx, data)
}

// SignMessageWithContext returns a 65 byte r||s||v signature with v in {27, 28}.
func (a *AWSKMSTransportSigner) SignMessageWithContext(ctx context.Context, data []byte) ([]byte, error) {
	digest := signing.MessageHash(data)

	out, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          digest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "kms sign failed for key %s", a.keyId)
	}

	sig, err := a.toEthereumSignature(digest, out.Signature)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to convert kms signature for key %s", a.keyId)
	}

	a.logger.Sugar().Debugw("Signed message with KMS", "signer", a.address.Hex(), "payloadLength", len(data))
	return sig, nil
}

func (a *AWSKMSTransportSigner) Address() common.Address {
	return a.address
}

// toEthereumSignature turns a DER encoded (r, s) pair into r||s||v. s is
// moved to the lower half of the curve order and v is found by recovering
// with each candidate id and comparing against the KMS public key.
func (a *AWSKMSTransportSigner) toEthereumSignature(digest []byte, der []byte) ([]byte, error) {
	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(der, &sigAsn1); err != nil {
		return nil, fmt.Errorf("failed to parse DER signature: %w", err)
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)

	curveOrder := crypto.S256().Params().N
	halfOrder := new(big.Int).Rsh(curveOrder, 1)
	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(curveOrder, s)
	}

	signature := make([]byte, crypto.SignatureLength)
	r.FillBytes(signature[0:32])
	s.FillBytes(signature[32:64])

	for recoveryId := byte(0); recoveryId < 2; recoveryId++ {
		signature[crypto.RecoveryIDOffset] = recoveryId

		recovered, err := crypto.Ecrecover(digest, signature)
		if err != nil {
			a.logger.Debug("Ecrecover failed", zap.Uint8("recoveryId", recoveryId), zap.Error(err))
			continue
		}
		if bytes.Equal(recovered, a.publicKey) {
			signature[crypto.RecoveryIDOffset] = recoveryId + 27
			return signature, nil
		}
	}

	return nil, fmt.Errorf("could not determine valid recovery id")
}

// parseECDSAPublicKey parses the DER encoded SubjectPublicKeyInfo returned by KMS
func parseECDSAPublicKey(derBytes []byte) (*ecdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &asn1pubk); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	if !asn1pubk.EcPublicKeyInfo.Algorithm.Equal(oidEcPublicKey) {
		return nil, fmt.Errorf("key is not an EC public key (algorithm %s)", asn1pubk.EcPublicKeyInfo.Algorithm)
	}
	if !asn1pubk.EcPublicKeyInfo.Parameters.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("key is not on secp256k1 (curve %s)", asn1pubk.EcPublicKeyInfo.Parameters)
	}

	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

var (
	oidEcPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}
