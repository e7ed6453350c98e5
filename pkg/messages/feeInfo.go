package messages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/Layr-Labs/feeinfo-go/pkg/packing"
	"github.com/Layr-Labs/feeinfo-go/pkg/schema"
	"github.com/Layr-Labs/feeinfo-go/pkg/signing"
	"github.com/Layr-Labs/feeinfo-go/pkg/transportSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

/*
FeeInfo is the fee update a channel participant sends to a path-finding
service. The signed payload is the packed encoding

	address(20) || uint256(32) || uint256(32) || uint256(32) || uint256(32)

of [token_network_address, channel_identifier, chain_id, nonce, percentage_fee],
148 bytes in total. Changing the order or the types breaks every existing
signer/verifier pair.

The percentage fee is expressed in parts per million: 10000 is 1%.
*/

// MessageTypeFeeInfo identifies fee updates among other PFS messages.
const MessageTypeFeeInfo = "FeeInfo"

// CanonicalLength is the size of the signed payload.
const CanonicalLength = packing.AddressWidth + 4*packing.Uint256Width

// StructuredRecord is the wire form of a fee update, e.g. one JSON object.
type StructuredRecord map[string]interface{}

type FeeInfo struct {
	tokenNetworkAddress common.Address
	channelIdentifier   *big.Int
	chainID             *big.Int
	nonce               *big.Int
	percentageFee       *big.Int
	signature           []byte
}

// NewFeeInfo builds a fee update. tokenNetworkAddress must be a 20 byte hex
// address (checksum is not enforced) and channelIdentifier must not be
// negative. A nil chainID defaults to 1; nil nonce and percentageFee default
// to 0. Upper bounds are only checked when the message is encoded.
func NewFeeInfo(
	tokenNetworkAddress string,
	channelIdentifier *big.Int,
	chainID *big.Int,
	nonce *big.Int,
	percentageFee *big.Int,
	signature []byte,
) (*FeeInfo, error) {
	if !common.IsHexAddress(tokenNetworkAddress) {
		return nil, newConstructionError(schema.KeyTokenNetworkAddress, fmt.Sprintf("%q is not a valid address", tokenNetworkAddress))
	}
	if channelIdentifier == nil {
		return nil, newConstructionError(schema.KeyChannelIdentifier, "is required")
	}
	if channelIdentifier.Sign() < 0 {
		return nil, newConstructionError(schema.KeyChannelIdentifier, fmt.Sprintf("must be >= 0, got %s", channelIdentifier.String()))
	}

	return &FeeInfo{
		tokenNetworkAddress: common.HexToAddress(tokenNetworkAddress),
		channelIdentifier:   copyInt(channelIdentifier),
		chainID:             copyIntOr(chainID, 1),
		nonce:               copyIntOr(nonce, 0),
		percentageFee:       copyIntOr(percentageFee, 0),
		signature:           copyBytes(signature),
	}, nil
}

// FeeInfoFromStructured validates record against the fee update schema and
// builds the message from it. Nothing is constructed when validation fails.
func FeeInfoFromStructured(record StructuredRecord) (*FeeInfo, error) {
	fields, err := schema.ValidateFeeInfo(record)
	if err != nil {
		return nil, err
	}

	return NewFeeInfo(
		fields.TokenNetworkAddress,
		fields.ChannelIdentifier,
		fields.ChainID,
		fields.Nonce,
		fields.PercentageFee,
		fields.Signature,
	)
}

// UnmarshalFeeInfo parses a JSON encoded fee update.
func UnmarshalFeeInfo(data []byte) (*FeeInfo, error) {
	fi := &FeeInfo{}
	if err := fi.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return fi, nil
}

func (f *FeeInfo) TokenNetworkAddress() common.Address {
	return f.tokenNetworkAddress
}

func (f *FeeInfo) ChannelIdentifier() *big.Int {
	return copyInt(f.channelIdentifier)
}

func (f *FeeInfo) ChainID() *big.Int {
	return copyInt(f.chainID)
}

func (f *FeeInfo) Nonce() *big.Int {
	return copyInt(f.nonce)
}

func (f *FeeInfo) PercentageFee() *big.Int {
	return copyInt(f.percentageFee)
}

func (f *FeeInfo) Signature() []byte {
	return copyBytes(f.signature)
}

func (f *FeeInfo) IsSigned() bool {
	return f.signature != nil
}

// SetSignature attaches the sender's signature over CanonicalBytes.
func (f *FeeInfo) SetSignature(signature []byte) {
	f.signature = copyBytes(signature)
}

// ToStructured returns the wire form. Integers are *big.Int so they encode
// as plain JSON numbers.
func (f *FeeInfo) ToStructured() StructuredRecord {
	var sig interface{}
	if f.signature != nil {
		sig = hexutil.Encode(f.signature)
	}

	return StructuredRecord{
		schema.KeyTokenNetworkAddress: f.tokenNetworkAddress.Hex(),
		schema.KeyChannelIdentifier:   copyInt(f.channelIdentifier),
		schema.KeyChainID:             copyInt(f.chainID),
		schema.KeyNonce:               copyInt(f.nonce),
		schema.KeyPercentageFee:       copyInt(f.percentageFee),
		schema.KeySignature:           sig,
	}
}

// CanonicalBytes returns the exact byte string that is signed.
func (f *FeeInfo) CanonicalBytes() ([]byte, error) {
	packed, err := packing.PackData(
		packing.Address(f.tokenNetworkAddress),
		packing.Uint256(f.channelIdentifier),
		packing.Uint256(f.chainID),
		packing.Uint256(f.nonce),
		packing.Uint256(f.percentageFee),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fee info: %w", err)
	}
	return packed, nil
}

// Signer recovers the address that signed the message. It returns nil and no
// error while the message is unsigned. The result is recomputed on every call.
func (f *FeeInfo) Signer() (*common.Address, error) {
	if f.signature == nil {
		return nil, nil
	}

	payload, err := f.CanonicalBytes()
	if err != nil {
		return nil, err
	}

	signer, err := signing.RecoverSigner(f.signature, payload)
	if err != nil {
		return nil, err
	}
	return &signer, nil
}

// Sign asks signer to sign the canonical bytes and attaches the signature.
func (f *FeeInfo) Sign(signer transportSigner.IMessageSigner) error {
	payload, err := f.CanonicalBytes()
	if err != nil {
		return err
	}

	sig, err := signer.SignMessage(payload)
	if err != nil {
		return fmt.Errorf("failed to sign fee info: %w", err)
	}
	f.signature = copyBytes(sig)
	return nil
}

// Copy returns a deep copy of the message.
func (f *FeeInfo) Copy() *FeeInfo {
	if f == nil {
		return nil
	}
	return &FeeInfo{
		tokenNetworkAddress: f.tokenNetworkAddress,
		channelIdentifier:   copyInt(f.channelIdentifier),
		chainID:             copyInt(f.chainID),
		nonce:               copyInt(f.nonce),
		percentageFee:       copyInt(f.percentageFee),
		signature:           copyBytes(f.signature),
	}
}

// Equal compares every field, including the signature.
func (f *FeeInfo) Equal(other *FeeInfo) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.tokenNetworkAddress == other.tokenNetworkAddress &&
		intEqual(f.channelIdentifier, other.channelIdentifier) &&
		intEqual(f.chainID, other.chainID) &&
		intEqual(f.nonce, other.nonce) &&
		intEqual(f.percentageFee, other.percentageFee) &&
		bytes.Equal(f.signature, other.signature) &&
		(f.signature == nil) == (other.signature == nil)
}

func (f *FeeInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.ToStructured())
}

func (f *FeeInfo) UnmarshalJSON(data []byte) error {
	var record StructuredRecord
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&record); err != nil {
		return fmt.Errorf("failed to decode fee info: %w", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("failed to decode fee info: unexpected data after the JSON object")
	}

	parsed, err := FeeInfoFromStructured(record)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

// intEqual treats two unset integers as equal.
func intEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}

func copyInt(n *big.Int) *big.Int {
	if n == nil {
		return nil
	}
	return new(big.Int).Set(n)
}

func copyIntOr(n *big.Int, fallback int64) *big.Int {
	if n == nil {
		return big.NewInt(fallback)
	}
	return new(big.Int).Set(n)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
